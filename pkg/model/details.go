package model

import (
	"encoding/json"
	"fmt"
)

// ChoiceValue is an enum field as serialized by the upstream API. Detail
// endpoints render these as {"value": ..., "display": ...} objects while
// list endpoints render the bare display string; both decode to the
// display form.
type ChoiceValue string

func (v *ChoiceValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = ChoiceValue(s)
		return nil
	}
	var obj struct {
		Display string `json:"display"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("choice value: %w", err)
	}
	*v = ChoiceValue(obj.Display)
	return nil
}

// CarDetails holds the attributes shared by new-car and used-car listings.
type CarDetails struct {
	Location         string      `json:"location"`
	Description      string      `json:"description"`
	CarModel         int64       `json:"car_model"`
	CarModelName     string      `json:"car_model_name"`
	ModelYear        int         `json:"model_year"`
	Color            string      `json:"color"`
	Features         string      `json:"features"`
	SaleCondition    ChoiceValue `json:"sale_condition"`
	FuelType         ChoiceValue `json:"fuel_type"`
	ProductionType   ChoiceValue `json:"production_type"`
	UsageType        ChoiceValue `json:"usage_type"`
	SettlementStatus ChoiceValue `json:"settlement_status"`
}

// NewCarDetails is the type-specific payload of a new-car listing.
type NewCarDetails struct {
	CarDetails
}

// UsedCarDetails is the type-specific payload of a used-car listing.
type UsedCarDetails struct {
	CarDetails
	Mileage             int64       `json:"mileage"`
	DocumentType        ChoiceValue `json:"document_type"`
	InsuranceMonthsLeft int         `json:"insurance_months_left"`
	CanExchange         bool        `json:"can_exchange"`
}

// HavalehDetails is the type-specific payload of a delivery-order listing.
type HavalehDetails struct {
	Location         string      `json:"location"`
	Description      string      `json:"description"`
	CarModel         int64       `json:"car_model"`
	CarModelName     string      `json:"car_model_name"`
	SaleCondition    ChoiceValue `json:"sale_condition"`
	SettlementStatus ChoiceValue `json:"settlement_status"`
	DeliveryType     ChoiceValue `json:"delivery_type"`
	SalesPlan        ChoiceValue `json:"sales_plan"`
	SellerGender     ChoiceValue `json:"seller_gender"`
}

// DecodeDetails validates the type-specific payload of an item against the
// schema for its listing type and returns the typed form. The aggregation
// core never calls this; it is for consumers that need the attributes.
func DecodeDetails(it ListingItem) (any, error) {
	if len(it.Details) == 0 {
		return nil, fmt.Errorf("listing %s/%d has no details payload", it.Type, it.ID)
	}
	var (
		out any
		err error
	)
	switch it.Type {
	case TypeNewCar:
		var d NewCarDetails
		err = json.Unmarshal(it.Details, &d)
		out = d
	case TypeUsedCar:
		var d UsedCarDetails
		err = json.Unmarshal(it.Details, &d)
		out = d
	case TypeHavaleh:
		var d HavalehDetails
		err = json.Unmarshal(it.Details, &d)
		out = d
	default:
		return nil, fmt.Errorf("unknown listing type %q", it.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details for listing %d: %w", it.Type, it.ID, err)
	}
	return out, nil
}
