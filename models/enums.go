package models

type MovementType string

const (
	MovementTypeSale       MovementType = "sale"
	MovementTypePurchase   MovementType = "purchase"
	MovementTypeTransfer   MovementType = "transfer"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeReturn     MovementType = "return"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementTypeSale, MovementTypePurchase, MovementTypeTransfer, MovementTypeAdjustment, MovementTypeReturn:
		return true
	}
	return false
}

type ReferenceType string

const (
	ReferenceTypeSale             ReferenceType = "sale"
	ReferenceTypePurchase         ReferenceType = "purchase"
	ReferenceTypeReservation      ReferenceType = "reservation"
	ReferenceTypeRefund           ReferenceType = "refund"
	ReferenceTypeSaleCancellation ReferenceType = "sale_cancellation"
	ReferenceTypeRecount          ReferenceType = "recount"
)

type LocationType string

const (
	LocationTypeDisplay LocationType = "display"
	LocationTypeStorage LocationType = "storage"
	LocationTypeReserve LocationType = "reserve"
)

func (t LocationType) Valid() bool {
	switch t {
	case LocationTypeDisplay, LocationTypeStorage, LocationTypeReserve:
		return true
	}
	return false
}

// Priority returns the allocation priority of the location type.
// Display stock is sold first so the floor empties before storage is touched.
func (t LocationType) Priority() int {
	if t == LocationTypeDisplay {
		return 1
	}
	return 2
}

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
	SaleStatusRefunded  SaleStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusPartial  PaymentStatus = "partial"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodMixed    PaymentMethod = "mixed"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodMixed:
		return true
	}
	return false
}

type ItemCondition string

const (
	ItemConditionGood      ItemCondition = "good"
	ItemConditionDamaged   ItemCondition = "damaged"
	ItemConditionDefective ItemCondition = "defective"
)
