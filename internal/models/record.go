package models

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/prescodata/internal/core"
)

// Record is one row of the fixed-schema shareholder collection.
type Record struct {
	SNo           int64
	AccountNumber int64
	Name          string
	Address       string
	UnitsHeld     float64
	RightsDue     float64
	Amount        float64
	MobileNo      *string
	Email         *string
}

// RecordView is the shape returned by search and account lookup.
type RecordView struct {
	ID            string  `json:"id"`
	AccountNumber string  `json:"accountNumber"`
	Names         string  `json:"names"`
	Address       string  `json:"address"`
	UnitsHeld     string  `json:"unitsHeld"`
	RightDue      string  `json:"rightDue"`
	AmountPayable string  `json:"amountPayable"`
	Mobile        *string `json:"mobile"`
	EmailAddress  *string `json:"emailAddress"`
}

// RecordFields are the columns of the fixed schema, in sheet order.
var RecordFields = []FieldDef{
	{Name: "s_no", Type: FieldNumber, Indexed: true},
	{Name: "account_number", Type: FieldNumber, Indexed: true},
	{Name: "name", Type: FieldString, Indexed: true, Text: true},
	{Name: "address", Type: FieldString, Indexed: true},
	{Name: "units_held", Type: FieldNumber, Indexed: true},
	{Name: "rights_due", Type: FieldNumber, Indexed: true},
	{Name: "amount", Type: FieldNumber, Indexed: true},
	{Name: "mobile_no", Type: FieldString, Indexed: true, Text: true},
	{Name: "email", Type: FieldString, Indexed: true, Text: true},
}

// RecordFromRow validates and converts a parsed row. Numeric columns accept
// numeric text; contact columns accept numbers (phone numbers often are).
func RecordFromRow(row Row) (Record, error) {
	var (
		r   Record
		err error
	)
	if r.SNo, err = requireInt(row, "s_no"); err != nil {
		return r, err
	}
	if r.AccountNumber, err = requireInt(row, "account_number"); err != nil {
		return r, err
	}
	if r.Name, err = requireText(row, "name"); err != nil {
		return r, err
	}
	if r.Address, err = requireText(row, "address"); err != nil {
		return r, err
	}
	if r.UnitsHeld, err = requireFloat(row, "units_held"); err != nil {
		return r, err
	}
	if r.RightsDue, err = requireFloat(row, "rights_due"); err != nil {
		return r, err
	}
	if r.Amount, err = requireFloat(row, "amount"); err != nil {
		return r, err
	}
	r.MobileNo = optionalText(row, "mobile_no")
	r.Email = optionalText(row, "email")
	return r, nil
}

// RecordFromDocument rebuilds a record from its stored form.
func RecordFromDocument(doc core.Document) (Record, error) {
	return RecordFromRow(Row(doc))
}

func (r Record) ToDocument() core.Document {
	doc := core.Document{
		"s_no":           r.SNo,
		"account_number": r.AccountNumber,
		"name":           r.Name,
		"address":        r.Address,
		"units_held":     r.UnitsHeld,
		"rights_due":     r.RightsDue,
		"amount":         r.Amount,
		"mobile_no":      nil,
		"email":          nil,
	}
	if r.MobileNo != nil {
		doc["mobile_no"] = *r.MobileNo
	}
	if r.Email != nil {
		doc["email"] = *r.Email
	}
	return doc
}

// View maps the record to its presentation shape; numbers become strings.
func (r Record) View() RecordView {
	return RecordView{
		ID:            core.FormatValue(r.SNo),
		AccountNumber: core.FormatValue(r.AccountNumber),
		Names:         r.Name,
		Address:       r.Address,
		UnitsHeld:     core.FormatValue(r.UnitsHeld),
		RightDue:      core.FormatValue(r.RightsDue),
		AmountPayable: core.FormatValue(r.Amount),
		Mobile:        r.MobileNo,
		EmailAddress:  r.Email,
	}
}

func requireInt(row Row, key string) (int64, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, ok := core.AsInt64(v)
	if !ok {
		return 0, fmt.Errorf("%s must be a whole number, got %v", key, v)
	}
	return n, nil
}

func requireFloat(row Row, key string) (float64, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	if f, ok := core.AsFloat(v); ok {
		return f, nil
	}
	if s, ok := v.(string); ok {
		if n, ok := core.ParseNumber(s); ok {
			f, _ := core.AsFloat(n)
			return f, nil
		}
	}
	return 0, fmt.Errorf("%s must be a number, got %v", key, v)
}

func requireText(row Row, key string) (string, error) {
	p := optionalText(row, key)
	if p == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	return *p, nil
}

func optionalText(row Row, key string) *string {
	v, ok := row[key]
	if !ok || v == nil {
		return nil
	}
	s := strings.TrimSpace(core.FormatValue(v))
	if s == "" {
		return nil
	}
	return &s
}
