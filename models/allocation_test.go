package models

import (
	"testing"
)

func candidate(inventoryId, locationId int, locType LocationType, qty, reserved int) ProductLocation {
	return ProductLocation{
		InventoryId:       inventoryId,
		LocationId:        locationId,
		LocationType:      locType,
		Quantity:          qty,
		ReservedQuantity:  reserved,
		AvailableQuantity: qty - reserved,
	}
}

func TestPlanAllocationPrefersDisplay(t *testing.T) {
	candidates := []ProductLocation{
		candidate(1, 10, LocationTypeStorage, 50, 0),
		candidate(2, 11, LocationTypeDisplay, 3, 0),
	}

	plan, covered := planAllocation(candidates, 2)
	if covered != 2 {
		t.Fatalf("covered = %d, want 2", covered)
	}
	if len(plan) != 1 {
		t.Fatalf("plan has %d slices, want 1", len(plan))
	}
	if plan[0].LocationId != 11 || plan[0].Quantity != 2 {
		t.Errorf("plan[0] = %+v, want 2 units from location 11", plan[0])
	}
}

func TestPlanAllocationSpillsIntoStorage(t *testing.T) {
	candidates := []ProductLocation{
		candidate(1, 10, LocationTypeStorage, 50, 0),
		candidate(2, 11, LocationTypeDisplay, 3, 0),
	}

	plan, covered := planAllocation(candidates, 5)
	if covered != 5 {
		t.Fatalf("covered = %d, want 5", covered)
	}
	if len(plan) != 2 {
		t.Fatalf("plan has %d slices, want 2", len(plan))
	}
	if plan[0].LocationId != 11 || plan[0].Quantity != 3 {
		t.Errorf("plan[0] = %+v, want display location 11 emptied first", plan[0])
	}
	if plan[1].LocationId != 10 || plan[1].Quantity != 2 {
		t.Errorf("plan[1] = %+v, want remainder from storage location 10", plan[1])
	}
}

func TestPlanAllocationHigherAvailableFirstWithinPriority(t *testing.T) {
	candidates := []ProductLocation{
		candidate(1, 10, LocationTypeDisplay, 2, 0),
		candidate(2, 11, LocationTypeDisplay, 8, 0),
	}

	plan, covered := planAllocation(candidates, 4)
	if covered != 4 {
		t.Fatalf("covered = %d, want 4", covered)
	}
	if len(plan) != 1 {
		t.Fatalf("plan has %d slices, want 1", len(plan))
	}
	if plan[0].LocationId != 11 {
		t.Errorf("allocated from location %d, want the better-stocked 11", plan[0].LocationId)
	}
}

func TestPlanAllocationTieBreaksByLocationId(t *testing.T) {
	candidates := []ProductLocation{
		candidate(2, 12, LocationTypeDisplay, 5, 0),
		candidate(1, 11, LocationTypeDisplay, 5, 0),
	}

	plan, _ := planAllocation(candidates, 1)
	if plan[0].LocationId != 11 {
		t.Errorf("allocated from location %d, want lowest id 11 on a tie", plan[0].LocationId)
	}
}

func TestPlanAllocationSkipsReservedStock(t *testing.T) {
	candidates := []ProductLocation{
		candidate(1, 10, LocationTypeDisplay, 5, 5),
		candidate(2, 11, LocationTypeStorage, 4, 1),
	}

	plan, covered := planAllocation(candidates, 3)
	if covered != 3 {
		t.Fatalf("covered = %d, want 3", covered)
	}
	if len(plan) != 1 || plan[0].LocationId != 11 {
		t.Fatalf("plan = %+v, want everything from storage location 11", plan)
	}
	if plan[0].Quantity != 3 {
		t.Errorf("plan[0].Quantity = %d, want 3", plan[0].Quantity)
	}
}

func TestPlanAllocationShortfall(t *testing.T) {
	candidates := []ProductLocation{
		candidate(1, 10, LocationTypeDisplay, 2, 0),
		candidate(2, 11, LocationTypeStorage, 3, 2),
	}

	plan, covered := planAllocation(candidates, 10)
	if covered != 3 {
		t.Fatalf("covered = %d, want 3", covered)
	}
	total := 0
	for _, s := range plan {
		total += s.Quantity
	}
	if total != 3 {
		t.Errorf("plan allocates %d units, want 3", total)
	}
}

func TestPlanAllocationZeroCandidates(t *testing.T) {
	plan, covered := planAllocation(nil, 4)
	if covered != 0 || len(plan) != 0 {
		t.Errorf("plan = %+v covered = %d, want empty plan", plan, covered)
	}
}
