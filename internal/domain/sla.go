package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// Sentinel SLA rule priorities.
const (
	SLAPriorityAll     TicketPriority = "all"
	SLAPriorityDefault TicketPriority = "default"
)

// ConditionOperator is a comparison applied by an SLA condition.
type ConditionOperator string

const (
	OperatorEquals    ConditionOperator = "="
	OperatorNotEquals ConditionOperator = "!="
	OperatorIn        ConditionOperator = "in"
	OperatorNotIn     ConditionOperator = "not_in"
	OperatorContains  ConditionOperator = "contains"
)

// IsListOperator reports whether the operator compares against a list of values.
func (o ConditionOperator) IsListOperator() bool {
	return o == OperatorIn || o == OperatorNotIn
}

// SLACondition is one predicate of an SLA rule. Value holds the scalar operand,
// Values the list operand for in/not_in.
type SLACondition struct {
	Field    string
	Operator ConditionOperator
	Value    string
	Values   []string
}

type slaConditionJSON struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    json.RawMessage   `json:"value"`
}

// MarshalJSON writes the list operand as an array and the scalar one as a string.
func (c SLACondition) MarshalJSON() ([]byte, error) {
	var value any = c.Value
	if c.Operator.IsListOperator() {
		values := c.Values
		if values == nil {
			values = []string{}
		}
		value = values
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(slaConditionJSON{Field: c.Field, Operator: c.Operator, Value: raw})
}

// UnmarshalJSON accepts either a string or an array of strings as value.
func (c *SLACondition) UnmarshalJSON(data []byte) error {
	var raw slaConditionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Field = raw.Field
	c.Operator = raw.Operator
	c.Value = ""
	c.Values = nil
	if len(raw.Value) == 0 || string(raw.Value) == "null" {
		return nil
	}
	switch raw.Value[0] {
	case '[':
		return json.Unmarshal(raw.Value, &c.Values)
	case '"':
		return json.Unmarshal(raw.Value, &c.Value)
	default:
		var number json.Number
		if err := json.Unmarshal(raw.Value, &number); err != nil {
			return errors.New("condition value must be a string, number or list")
		}
		c.Value = number.String()
		return nil
	}
}

// SLARule is a response/resolution commitment, optionally scoped to an entity.
// A nil EntityID makes the rule global.
type SLARule struct {
	ID                  string
	EntityID            *string
	Name                string
	Priority            TicketPriority
	ResponseTimeHours   *int
	ResolutionTimeHours *int
	EscalationTimeHours *int
	Conditions          []SLACondition
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsGlobal reports whether the rule applies across entities.
func (r *SLARule) IsGlobal() bool {
	return r.EntityID == nil
}

// IsDefault reports whether the rule is a fallback rule.
func (r *SLARule) IsDefault() bool {
	return r.Priority == SLAPriorityDefault
}
