package picker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wms-platform/pick-floor/internal/application"
	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/errors"
	"github.com/wms-platform/pick-floor/pkg/idempotency"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/middleware"
)

// UnitView is a unit together with the other members of its combined group
type UnitView struct {
	Unit    *domain.WorkUnit
	Members []*domain.WorkUnit
}

// All returns the unit followed by its group members
func (v *UnitView) All() []*domain.WorkUnit {
	return append([]*domain.WorkUnit{v.Unit}, v.Members...)
}

// ItemUpdate is a pick recorder transition mirrored to the server. Picked is
// the absolute count so a replayed update lands on the same state.
type ItemUpdate struct {
	UnitID string             `json:"unitId"`
	ItemID string             `json:"itemId"`
	Picked int                `json:"pickedQuantity"`
	Status domain.ItemStatus  `json:"status,omitempty"`
	Method domain.PickMethod  `json:"method,omitempty"`
	Reason domain.ShortReason `json:"reason,omitempty"`
	Note   string             `json:"note,omitempty"`
}

// ItemUpdateResult is the server's answer to an item update
type ItemUpdateResult struct {
	Item           domain.Item
	Unit           *domain.WorkUnit
	Reconciliation *domain.ReconciliationContext
}

// unitPayload decodes a UnitDTO. The DTO field names match the domain JSON
// tags, so units decode straight into the aggregate.
type unitPayload struct {
	domain.WorkUnit
	Members []*domain.WorkUnit `json:"members,omitempty"`
}

func (p *unitPayload) view() *UnitView {
	unit := p.WorkUnit
	unit.PriorityRank = unit.Priority.Rank()
	for _, m := range p.Members {
		m.PriorityRank = m.Priority.Rank()
	}
	return &UnitView{Unit: &unit, Members: p.Members}
}

// Client talks to the pick floor API on behalf of one picker
type Client struct {
	baseURL    string
	pickerID   string
	httpClient *http.Client
}

// NewClient creates a client for baseURL acting as pickerID
func NewClient(baseURL, pickerID string) *Client {
	return &Client{
		baseURL:  baseURL,
		pickerID: pickerID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PickerID returns the picker the client acts for
func (c *Client) PickerID() string {
	return c.pickerID
}

// FetchQueue returns the units visible to the picker in queue order
func (c *Client) FetchQueue(ctx context.Context, filter domain.QueueFilter, includeCompleted bool) ([]*domain.WorkUnit, error) {
	q := url.Values{}
	q.Set("pickerId", c.pickerID)
	if filter != "" {
		q.Set("filter", string(filter))
	}
	if includeCompleted {
		q.Set("includeCompleted", "true")
	}

	var payload []unitPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/queue?"+q.Encode(), "", nil, &payload); err != nil {
		return nil, err
	}
	units := make([]*domain.WorkUnit, 0, len(payload))
	for i := range payload {
		units = append(units, payload[i].view().Unit)
	}
	return units, nil
}

// GrabNext returns the first claimable unit without claiming it
func (c *Client) GrabNext(ctx context.Context) (*domain.WorkUnit, error) {
	var payload unitPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/queue/next", "", nil, &payload); err != nil {
		return nil, err
	}
	return payload.view().Unit, nil
}

// GetUnit fetches a unit and its group members
func (c *Client) GetUnit(ctx context.Context, unitID string) (*UnitView, error) {
	var payload unitPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/units/"+url.PathEscape(unitID), "", nil, &payload); err != nil {
		return nil, err
	}
	return payload.view(), nil
}

// Claim asks the server for ownership of a unit. A combined group is claimed
// as a whole.
func (c *Client) Claim(ctx context.Context, unitID string) (*UnitView, error) {
	body := map[string]string{"pickerId": c.pickerID}
	var payload unitPayload
	if err := c.do(ctx, http.MethodPost, unitPath(unitID, "claim"), "", body, &payload); err != nil {
		return nil, err
	}
	return payload.view(), nil
}

// Release gives up the picker's claim
func (c *Client) Release(ctx context.Context, key, unitID string, resetProgress bool) (*UnitView, error) {
	body := map[string]interface{}{"pickerId": c.pickerID, "resetProgress": resetProgress}
	var payload unitPayload
	if err := c.do(ctx, http.MethodPost, unitPath(unitID, "release"), key, body, &payload); err != nil {
		return nil, err
	}
	return payload.view(), nil
}

// ForceRelease clears any claim on the unit
func (c *Client) ForceRelease(ctx context.Context, key, unitID string, resetProgress bool) (*UnitView, error) {
	body := map[string]interface{}{"actorId": c.pickerID, "resetProgress": resetProgress}
	var payload unitPayload
	if err := c.do(ctx, http.MethodPost, unitPath(unitID, "force-release"), key, body, &payload); err != nil {
		return nil, err
	}
	return payload.view(), nil
}

// Hold takes the unit out of pickable availability
func (c *Client) Hold(ctx context.Context, key, unitID string) (*domain.WorkUnit, error) {
	return c.unitAction(ctx, http.MethodPost, unitPath(unitID, "hold"), key, map[string]string{"actorId": c.pickerID})
}

// ReleaseHold puts the unit back in pickable availability
func (c *Client) ReleaseHold(ctx context.Context, key, unitID string) (*domain.WorkUnit, error) {
	return c.unitAction(ctx, http.MethodPost, unitPath(unitID, "release-hold"), key, map[string]string{"actorId": c.pickerID})
}

// SetPriority changes the unit's queue ranking
func (c *Client) SetPriority(ctx context.Context, key, unitID string, priority domain.Priority) (*domain.WorkUnit, error) {
	body := map[string]string{"priority": string(priority), "actorId": c.pickerID}
	return c.unitAction(ctx, http.MethodPut, unitPath(unitID, "priority"), key, body)
}

// MarkReadyToShip hands a completed unit to shipping
func (c *Client) MarkReadyToShip(ctx context.Context, key, unitID string) (*domain.WorkUnit, error) {
	return c.unitAction(ctx, http.MethodPost, unitPath(unitID, "ready-to-ship"), key, map[string]string{"actorId": c.pickerID})
}

// UpdateItem mirrors an item transition
func (c *Client) UpdateItem(ctx context.Context, key string, update ItemUpdate) (*ItemUpdateResult, error) {
	body := map[string]interface{}{
		"pickerId":       c.pickerID,
		"pickedQuantity": update.Picked,
	}
	if update.Status != "" {
		body["status"] = update.Status
	}
	if update.Method != "" {
		body["method"] = update.Method
	}
	if update.Reason != "" {
		body["reason"] = update.Reason
	}
	if update.Note != "" {
		body["note"] = update.Note
	}

	var payload struct {
		Item           domain.Item                   `json:"item"`
		Unit           *unitPayload                  `json:"unit"`
		Reconciliation *domain.ReconciliationContext `json:"reconciliation"`
	}
	path := unitPath(update.UnitID, "items/"+url.PathEscape(update.ItemID))
	if err := c.do(ctx, http.MethodPatch, path, key, body, &payload); err != nil {
		return nil, err
	}

	result := &ItemUpdateResult{Item: payload.Item, Reconciliation: payload.Reconciliation}
	if payload.Unit != nil {
		result.Unit = payload.Unit.view().Unit
	}
	if result.Reconciliation == nil {
		result.Reconciliation = domain.NotDeducted(payload.Item.SKU, payload.Item.LocationID)
	}
	return result, nil
}

// ConfirmCount reports a physical bin count
func (c *Client) ConfirmCount(ctx context.Context, key string, count domain.BinCount) (*domain.CountResult, error) {
	return c.binCount(ctx, "/api/v1/bin-counts/confirm", key, count)
}

// SkipReplenishment records a count and cancels pending replenishment
func (c *Client) SkipReplenishment(ctx context.Context, key string, count domain.BinCount) (*domain.CountResult, error) {
	return c.binCount(ctx, "/api/v1/bin-counts/skip", key, count)
}

// ListExceptions returns units with open exceptions
func (c *Client) ListExceptions(ctx context.Context) ([]*domain.WorkUnit, error) {
	var payload []unitPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/exceptions", "", nil, &payload); err != nil {
		return nil, err
	}
	units := make([]*domain.WorkUnit, 0, len(payload))
	for i := range payload {
		units = append(units, payload[i].view().Unit)
	}
	return units, nil
}

// ResolveException applies a lead's resolution
func (c *Client) ResolveException(ctx context.Context, key, unitID string, resolution domain.Resolution, note string) (*domain.WorkUnit, error) {
	body := map[string]string{"resolution": string(resolution), "actorId": c.pickerID, "note": note}
	return c.unitAction(ctx, http.MethodPost, "/api/v1/exceptions/"+url.PathEscape(unitID)+"/resolve", key, body)
}

// Timeline returns the unit's audit trail
func (c *Client) Timeline(ctx context.Context, unitID string) ([]application.TimelineEntryDTO, error) {
	var entries []application.TimelineEntryDTO
	if err := c.do(ctx, http.MethodGet, unitPath(unitID, "timeline"), "", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) unitAction(ctx context.Context, method, path, key string, body interface{}) (*domain.WorkUnit, error) {
	var payload unitPayload
	if err := c.do(ctx, method, path, key, body, &payload); err != nil {
		return nil, err
	}
	return payload.view().Unit, nil
}

func (c *Client) binCount(ctx context.Context, path, key string, count domain.BinCount) (*domain.CountResult, error) {
	if count.CountedBy == "" {
		count.CountedBy = c.pickerID
	}
	body := map[string]interface{}{
		"sku":            count.SKU,
		"locationId":     count.LocationID,
		"actualQuantity": count.ActualQuantity,
		"countedBy":      count.CountedBy,
	}
	var payload application.BinCountResultDTO
	if err := c.do(ctx, http.MethodPost, path, key, body, &payload); err != nil {
		return nil, err
	}
	return &domain.CountResult{
		SKU:             payload.SKU,
		LocationID:      payload.LocationID,
		Adjustment:      payload.Adjustment,
		OnHand:          payload.OnHand,
		ReplenTriggered: payload.ReplenTriggered,
		ReplenStatus:    domain.ReplenStatus(payload.ReplenStatus),
		TaskID:          payload.TaskID,
	}, nil
}

func unitPath(unitID, action string) string {
	return "/api/v1/units/" + url.PathEscape(unitID) + "/" + action
}

// do sends one request. Non-2xx answers come back as *errors.AppError decoded
// from the API error body; anything else is a transport failure.
func (c *Client) do(ctx context.Context, method, path, key string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.HeaderPickerID, c.pickerID)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderCorrelationID, id)
	}
	if key != "" {
		req.Header.Set(idempotency.HeaderIdempotencyKey, key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var apiErr middleware.APIErrorResponse
	if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Code == "" {
		return errors.NewAppError(errors.CodeInternalError, "server returned status "+strconv.Itoa(resp.StatusCode), resp.StatusCode)
	}
	appErr := errors.NewAppError(apiErr.Code, apiErr.Message, resp.StatusCode)
	appErr.Details = apiErr.Details
	return appErr
}

// Retryable reports whether a failed mirror may succeed if sent again:
// transport failures and server-side 5xx answers.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return true
	}
	return appErr.HTTPStatus >= http.StatusInternalServerError
}
