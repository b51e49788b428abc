package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/pick-floor/internal/application"
	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/middleware"
)

// registerRoutes mounts the floor API under group
func registerRoutes(api *gin.RouterGroup, queue *application.QueueService, reconciliation *application.ReconciliationService, logger *logging.Logger) {
	api.GET("/queue", getQueueHandler(queue, logger))
	api.GET("/queue/next", grabNextHandler(queue, logger))

	units := api.Group("/units")
	{
		// Static routes before wildcard
		units.POST("", createUnitHandler(queue, logger))
		units.POST("/combine", combineUnitsHandler(queue, logger))
		units.GET("/:unitId", getUnitHandler(queue, logger))
		units.GET("/:unitId/timeline", timelineHandler(queue, logger))
		units.POST("/:unitId/claim", claimUnitHandler(queue, logger))
		units.POST("/:unitId/release", releaseUnitHandler(queue, logger))
		units.POST("/:unitId/force-release", forceReleaseHandler(queue, logger))
		units.POST("/:unitId/hold", holdUnitHandler(queue, logger))
		units.POST("/:unitId/release-hold", releaseHoldHandler(queue, logger))
		units.PUT("/:unitId/priority", setPriorityHandler(queue, logger))
		units.PATCH("/:unitId/items/:itemId", updateItemHandler(queue, logger))
		units.POST("/:unitId/ready-to-ship", readyToShipHandler(queue, logger))
	}

	api.GET("/exceptions", listExceptionsHandler(queue, logger))
	api.POST("/exceptions/:unitId/resolve", resolveExceptionHandler(queue, logger))

	api.POST("/bin-counts/confirm", confirmCountHandler(reconciliation, logger))
	api.POST("/bin-counts/skip", skipReplenishmentHandler(reconciliation, logger))
}

func versionHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "version": version})
	}
}

// actorOrHeader prefers the id in the body and falls back to X-Picker-ID
func actorOrHeader(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return middleware.GetPickerID(c)
}

// bindOptionalJSON binds the body when one was sent
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func toDomainItems(items []createItemRequest) []domain.Item {
	out := make([]domain.Item, len(items))
	for i, item := range items {
		out[i] = domain.Item{
			OrderID:     item.OrderID,
			SKU:         item.SKU,
			Barcode:     item.Barcode,
			ProductName: item.ProductName,
			LocationID:  item.LocationID,
			Quantity:    item.Quantity,
		}
	}
	return out
}

func getQueueHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		pickerID := actorOrHeader(c, c.Query("pickerId"))
		includeCompleted, _ := strconv.ParseBool(c.DefaultQuery("includeCompleted", "false"))
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"picker.id":    pickerID,
			"queue.filter": c.Query("filter"),
		})

		queue, err := service.GetQueue(c.Request.Context(), application.GetQueueQuery{
			PickerID:         pickerID,
			Filter:           c.Query("filter"),
			IncludeCompleted: includeCompleted,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, queue)
	}
}

func grabNextHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		unit, err := service.GrabNext(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

type createItemRequest struct {
	OrderID     string `json:"orderId"`
	SKU         string `json:"sku" binding:"required"`
	Barcode     string `json:"barcode"`
	ProductName string `json:"productName"`
	LocationID  string `json:"locationId" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
}

func createUnitHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			UnitID   string              `json:"unitId"`
			Kind     string              `json:"kind" binding:"required,oneof=order batch"`
			OrderIDs []string            `json:"orderIds" binding:"required,min=1"`
			Priority string              `json:"priority" binding:"omitempty,priority"`
			Items    []createItemRequest `json:"items" binding:"required,min=1,dive"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBindError(err)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"unit.id":    req.UnitID,
			"unit.kind":  req.Kind,
			"unit.items": len(req.Items),
		})

		cmd := application.CreateUnitCommand{
			UnitID:   req.UnitID,
			Kind:     req.Kind,
			OrderIDs: req.OrderIDs,
			Priority: req.Priority,
			Items:    toDomainItems(req.Items),
		}

		unit, err := service.CreateUnit(c.Request.Context(), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.Header("Location", "/api/v1/units/"+unit.UnitID)
		c.JSON(http.StatusCreated, unit)
	}
}

func combineUnitsHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			UnitIDs      []string `json:"unitIds" binding:"required,min=2"`
			ParentUnitID string   `json:"parentUnitId" binding:"required"`
			ActorID      string   `json:"actorId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBindError(err)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"unit.parent": req.ParentUnitID,
			"unit.count":  len(req.UnitIDs),
		})

		unit, err := service.CombineUnits(c.Request.Context(), application.CombineUnitsCommand{
			UnitIDs:      req.UnitIDs,
			ParentUnitID: req.ParentUnitID,
			ActorID:      actorOrHeader(c, req.ActorID),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, unit)
	}
}

func getUnitHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		unitID := c.Param("unitId")
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"unit.id": unitID,
		})

		unit, err := service.GetUnit(c.Request.Context(), application.GetUnitQuery{UnitID: unitID})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

func timelineHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		entries, err := service.GetTimeline(c.Request.Context(), application.GetUnitQuery{UnitID: c.Param("unitId")})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, entries)
	}
}

func claimUnitHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			PickerID string `json:"pickerId"`
		}
		if err := bindOptionalJSON(c, &req); err != nil {
			responder.RespondBindError(err)
			return
		}

		unitID := c.Param("unitId")
		pickerID := actorOrHeader(c, req.PickerID)
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"unit.id":   unitID,
			"picker.id": pickerID,
		})

		unit, err := service.ClaimUnit(c.Request.Context(), application.ClaimUnitCommand{
			UnitID:   unitID,
			PickerID: pickerID,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

func releaseUnitHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			PickerID      string `json:"pickerId"`
			ResetProgress bool   `json:"resetProgress"`
		}
		if err := bindOptionalJSON(c, &req); err != nil {
			responder.RespondBindError(err)
			return
		}

		unit, err := service.ReleaseUnit(c.Request.Context(), application.ReleaseUnitCommand{
			UnitID:        c.Param("unitId"),
			PickerID:      actorOrHeader(c, req.PickerID),
			ResetProgress: req.ResetProgress,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

func forceReleaseHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			ActorID       string `json:"actorId"`
			ResetProgress bool   `json:"resetProgress"`
		}
		if err := bindOptionalJSON(c, &req); err != nil {
			responder.RespondBindError(err)
			return
		}

		unit, err := service.ForceReleaseUnit(c.Request.Context(), application.ForceReleaseCommand{
			UnitID:        c.Param("unitId"),
			ActorID:       actorOrHeader(c, req.ActorID),
			ResetProgress: req.ResetProgress,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

type holdRequest struct {
	ActorID string `json:"actorId"`
}

func holdUnitHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req holdRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			responder.RespondBindError(err)
			return
		}

		unit, err := service.HoldUnit(c.Request.Context(), application.HoldCommand{
			UnitID:  c.Param("unitId"),
			ActorID: actorOrHeader(c, req.ActorID),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

func releaseHoldHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req holdRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			responder.RespondBindError(err)
			return
		}

		unit, err := service.ReleaseHold(c.Request.Context(), application.HoldCommand{
			UnitID:  c.Param("unitId"),
			ActorID: actorOrHeader(c, req.ActorID),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

func setPriorityHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			Priority string `json:"priority" binding:"required,priority"`
			ActorID  string `json:"actorId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBindError(err)
			return
		}

		unitID := c.Param("unitId")
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"unit.id":       unitID,
			"unit.priority": req.Priority,
		})

		unit, err := service.SetPriority(c.Request.Context(), application.SetPriorityCommand{
			UnitID:   unitID,
			Priority: req.Priority,
			ActorID:  actorOrHeader(c, req.ActorID),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

func updateItemHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			PickerID       string `json:"pickerId"`
			PickedQuantity *int   `json:"pickedQuantity" binding:"required,gte=0"`
			Status         string `json:"status" binding:"omitempty,item_status"`
			Method         string `json:"method" binding:"omitempty,pick_method"`
			Reason         string `json:"reason" binding:"omitempty,short_reason"`
			Note           string `json:"note" binding:"max=500"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBindError(err)
			return
		}

		unitID, itemID := c.Param("unitId"), c.Param("itemId")
		pickerID := actorOrHeader(c, req.PickerID)
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"unit.id":         unitID,
			"item.id":         itemID,
			"picker.id":       pickerID,
			"item.picked_qty": *req.PickedQuantity,
			"item.status":     req.Status,
		})

		result, err := service.UpdateItem(c.Request.Context(), application.UpdateItemCommand{
			UnitID:         unitID,
			ItemID:         itemID,
			PickerID:       pickerID,
			PickedQuantity: *req.PickedQuantity,
			Status:         req.Status,
			Method:         req.Method,
			Reason:         req.Reason,
			Note:           req.Note,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func readyToShipHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req holdRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			responder.RespondBindError(err)
			return
		}

		unit, err := service.MarkReadyToShip(c.Request.Context(), application.ReadyToShipCommand{
			UnitID:  c.Param("unitId"),
			ActorID: actorOrHeader(c, req.ActorID),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

func listExceptionsHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		units, err := service.ListExceptions(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, units)
	}
}

func resolveExceptionHandler(service *application.QueueService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			Resolution string `json:"resolution" binding:"required,resolution"`
			ActorID    string `json:"actorId"`
			Note       string `json:"note" binding:"max=500"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBindError(err)
			return
		}

		unitID := c.Param("unitId")
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"unit.id":              unitID,
			"exception.resolution": req.Resolution,
		})

		unit, err := service.ResolveException(c.Request.Context(), application.ResolveExceptionCommand{
			UnitID:     unitID,
			Resolution: req.Resolution,
			ActorID:    actorOrHeader(c, req.ActorID),
			Note:       req.Note,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, unit)
	}
}

type binCountRequest struct {
	SKU            string `json:"sku" binding:"required"`
	LocationID     string `json:"locationId" binding:"required"`
	ActualQuantity *int   `json:"actualQuantity" binding:"required,gte=0"`
	CountedBy      string `json:"countedBy"`
}

func (r binCountRequest) command(c *gin.Context) application.BinCountCommand {
	return application.BinCountCommand{
		SKU:            r.SKU,
		LocationID:     r.LocationID,
		ActualQuantity: *r.ActualQuantity,
		CountedBy:      actorOrHeader(c, r.CountedBy),
	}
}

func confirmCountHandler(service *application.ReconciliationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req binCountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBindError(err)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"bin.sku":      req.SKU,
			"bin.location": req.LocationID,
		})

		result, err := service.ConfirmCount(c.Request.Context(), req.command(c))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func skipReplenishmentHandler(service *application.ReconciliationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req binCountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBindError(err)
			return
		}

		result, err := service.SkipReplenishment(c.Request.Context(), req.command(c))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
