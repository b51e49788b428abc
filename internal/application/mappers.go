package application

import "github.com/wms-platform/pick-floor/internal/domain"

// ToUnitDTO converts a domain WorkUnit to UnitDTO
func ToUnitDTO(unit *domain.WorkUnit) *UnitDTO {
	if unit == nil {
		return nil
	}

	items := make([]ItemDTO, 0, len(unit.Items))
	for _, item := range unit.Items {
		items = append(items, ToItemDTO(item))
	}

	return &UnitDTO{
		UnitID:           unit.UnitID,
		Kind:             string(unit.Kind),
		OrderIDs:         unit.OrderIDs,
		Items:            items,
		Priority:         string(unit.Priority),
		Status:           string(unit.Status),
		OnHold:           unit.OnHold,
		ClaimedBy:        unit.ClaimedBy,
		ClaimedAt:        unit.ClaimedAt,
		CombinedGroupID:  unit.CombinedGroupID,
		ParentUnitID:     unit.ParentUnitID,
		Exception:        ToExceptionDTO(unit.Exception),
		CompletedAt:      unit.CompletedAt,
		CompletedBy:      unit.CompletedBy,
		ReadyToShipAt:    unit.ReadyToShipAt,
		CurrentItemIndex: unit.CurrentItemIndex(),
		PickedUnits:      unit.PickedUnits(),
		TotalUnits:       unit.TotalUnits(),
		CreatedAt:        unit.CreatedAt,
		UpdatedAt:        unit.UpdatedAt,
		Version:          unit.Version,
	}
}

// ToUnitDTOWithMembers converts the unit and attaches the rest of its group
func ToUnitDTOWithMembers(unit *domain.WorkUnit, group []*domain.WorkUnit) *UnitDTO {
	dto := ToUnitDTO(unit)
	if dto == nil || len(group) == 0 {
		return dto
	}
	for _, member := range group {
		if member.UnitID == unit.UnitID {
			continue
		}
		dto.Members = append(dto.Members, *ToUnitDTO(member))
	}
	return dto
}

// ToUnitDTOs converts a slice of units
func ToUnitDTOs(units []*domain.WorkUnit) []UnitDTO {
	dtos := make([]UnitDTO, 0, len(units))
	for _, unit := range units {
		dtos = append(dtos, *ToUnitDTO(unit))
	}
	return dtos
}

// ToItemDTO converts a domain Item to ItemDTO
func ToItemDTO(item domain.Item) ItemDTO {
	dto := ItemDTO{
		ItemID:         item.ItemID,
		OrderID:        item.OrderID,
		SKU:            item.SKU,
		Barcode:        item.Barcode,
		ProductName:    item.ProductName,
		LocationID:     item.LocationID,
		Quantity:       item.Quantity,
		PickedQuantity: item.PickedQuantity,
		Status:         string(item.Status),
		LastPickMethod: string(item.LastPickMethod),
		PickedAt:       item.PickedAt,
	}
	if item.Short != nil {
		dto.Short = &ShortPickDTO{
			Reason:         string(item.Short.Reason),
			Note:           item.Short.Note,
			PickedQuantity: item.Short.PickedQuantity,
			RecordedAt:     item.Short.RecordedAt,
		}
	}
	return dto
}

// ToExceptionDTO converts a domain UnitException to ExceptionDTO
func ToExceptionDTO(exception *domain.UnitException) *ExceptionDTO {
	if exception == nil {
		return nil
	}
	return &ExceptionDTO{
		Status:     string(exception.Status),
		ItemID:     exception.ItemID,
		Reason:     string(exception.Reason),
		RaisedBy:   exception.RaisedBy,
		RaisedAt:   exception.RaisedAt,
		Resolution: string(exception.Resolution),
		ResolvedAt: exception.ResolvedAt,
		ResolvedBy: exception.ResolvedBy,
		Note:       exception.Note,
	}
}

// ToTimelineDTOs converts timeline entries
func ToTimelineDTOs(entries []domain.TimelineEntry) []TimelineEntryDTO {
	dtos := make([]TimelineEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, TimelineEntryDTO{
			ID:         entry.ID,
			EventType:  entry.EventType,
			ActorID:    entry.ActorID,
			Data:       entry.Data,
			OccurredAt: entry.OccurredAt,
		})
	}
	return dtos
}

// ToBinCountResultDTO converts a count outcome
func ToBinCountResultDTO(result *domain.CountResult) *BinCountResultDTO {
	if result == nil {
		return nil
	}
	return &BinCountResultDTO{
		SKU:             result.SKU,
		LocationID:      result.LocationID,
		Adjustment:      result.Adjustment,
		OnHand:          result.OnHand,
		ReplenTriggered: result.ReplenTriggered,
		ReplenStatus:    string(result.ReplenStatus),
		TaskID:          result.TaskID,
	}
}
