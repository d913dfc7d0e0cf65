package chatpipline

import (
	"context"

	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/types"
)

// PluginSearch embeds the user query and retrieves the top-K chunks from the
// caller's own corpus. Retrieval failure degrades to an empty result;
// it never fails the turn.
type PluginSearch struct {
	retriever *service.RetrieverService
}

// NewPluginSearch creates and registers the search plugin.
func NewPluginSearch(eventManager *EventManager, retriever *service.RetrieverService) *PluginSearch {
	res := &PluginSearch{retriever: retriever}
	eventManager.Register(res)
	return res
}

func (p *PluginSearch) ActivationEvents() []types.EventType {
	return []types.EventType{types.SEARCH}
}

func (p *PluginSearch) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	chatManage.SearchResult = p.retriever.Search(
		ctx, chatManage.Query, chatManage.UserID, chatManage.RagK, chatManage.RagMinScore,
	)
	pipelineInfo(ctx, "Search", "retrieved", map[string]interface{}{
		"session_id": chatManage.SessionID.String(),
		"result_cnt": len(chatManage.SearchResult),
		"k":          chatManage.RagK,
		"min_score":  chatManage.RagMinScore,
	})
	return next()
}
