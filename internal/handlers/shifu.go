package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/middleware"
	"github.com/ai-shifu/shifu-backend/internal/repos"
	"github.com/ai-shifu/shifu-backend/internal/services"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

type ShifuHandler struct {
	log      *logger.Logger
	resolver services.StructResolver
	shifuSvc services.ShifuService
	progress repos.ProgressRepo
}

func NewShifuHandler(log *logger.Logger, resolver services.StructResolver, shifuSvc services.ShifuService, progress repos.ProgressRepo) *ShifuHandler {
	return &ShifuHandler{
		log:      log.With("handler", "ShifuHandler"),
		resolver: resolver,
		shifuSvc: shifuSvc,
		progress: progress,
	}
}

// GetInfo returns course metadata for the requested variant.
func (h *ShifuHandler) GetInfo(c *gin.Context) {
	shifuBID := c.Param("shifu_bid")
	preview := c.Query("preview") == "true"
	shifu, err := h.resolver.GetShifu(c.Request.Context(), shifuBID, preview)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bid":         shifu.BID,
		"title":       shifu.Title,
		"description": shifu.Description,
		"price":       shifu.Price,
	})
}

type outlineTreeItem struct {
	BID      string            `json:"bid"`
	Title    string            `json:"title"`
	Position string            `json:"position"`
	Type     string            `json:"type"`
	Locked   bool              `json:"locked"`
	Status   string            `json:"status"`
	Children []outlineTreeItem `json:"children,omitempty"`
}

// GetTree returns the resolved outline tree annotated with the caller's
// per-item learn status.
func (h *ShifuHandler) GetTree(c *gin.Context) {
	user := middleware.CurrentUser(c)
	shifuBID := c.Param("shifu_bid")
	preview := c.Query("preview") == "true"

	tree, err := h.resolver.GetStruct(c.Request.Context(), shifuBID, preview, user.Paid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	records, err := h.progress.GetByUserAndShifu(c.Request.Context(), nil, user.BID, shifuBID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	statusByOutline := make(map[string]string, len(records))
	for _, rec := range records {
		statusByOutline[rec.OutlineBID] = rec.Status
	}
	c.JSON(http.StatusOK, gin.H{
		"shifu_bid": tree.Shifu.BID,
		"title":     tree.Shifu.Title,
		"items":     buildTreeItems(tree.Roots, statusByOutline),
	})
}

func buildTreeItems(nodes []*services.OutlineNode, statuses map[string]string) []outlineTreeItem {
	items := make([]outlineTreeItem, 0, len(nodes))
	for _, n := range nodes {
		status, ok := statuses[n.Item.BID]
		if !ok {
			status = types.ProgressNotStarted
		}
		if n.Locked {
			status = types.ProgressLocked
		}
		items = append(items, outlineTreeItem{
			BID:      n.Item.BID,
			Title:    n.Item.Title,
			Position: n.Item.Position,
			Type:     n.Item.Type,
			Locked:   n.Locked,
			Status:   status,
			Children: buildTreeItems(n.Children, statuses),
		})
	}
	return items
}

// Publish replaces the published variant with a copy of the draft and
// appends a fresh struct snapshot, all in one transaction.
func (h *ShifuHandler) Publish(c *gin.Context) {
	shifuBID := c.Param("shifu_bid")
	if err := h.shifuSvc.Publish(c.Request.Context(), shifuBID); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"published": shifuBID})
}
