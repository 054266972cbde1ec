package sla

import (
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// Attributes are the ticket values SLA conditions are evaluated against.
type Attributes map[string]string

// TicketAttributes exposes the fields of t that conditions may reference.
// Recognized meta_data keys are available as "meta.<key>".
func TicketAttributes(t *domain.Ticket) Attributes {
	attrs := Attributes{
		"entity_id":      t.EntityID,
		"priority":       string(t.Priority),
		"status":         string(t.Status),
		"customer_email": t.CustomerEmail,
		"customer_name":  t.CustomerName,
		"subject":        t.Subject,
	}
	if t.Category != "" {
		attrs["category"] = t.Category
	}
	if t.CustomerPhone != "" {
		attrs["customer_phone"] = t.CustomerPhone
	}
	if t.AssignedTo != nil {
		attrs["assigned_to"] = *t.AssignedTo
	}
	for key, value := range t.MetaData {
		attrs["meta."+key] = value
	}
	return attrs
}

// Matches reports whether every condition holds. An empty list always matches.
func Matches(conditions []domain.SLACondition, attrs Attributes) bool {
	for _, c := range conditions {
		if !matchCondition(c, attrs) {
			return false
		}
	}
	return true
}

// A condition on a field absent from attrs never matches.
func matchCondition(c domain.SLACondition, attrs Attributes) bool {
	actual, ok := attrs[c.Field]
	if !ok {
		return false
	}
	switch c.Operator {
	case domain.OperatorEquals:
		return actual == c.Value
	case domain.OperatorNotEquals:
		return actual != c.Value
	case domain.OperatorIn:
		return contains(c.Values, actual)
	case domain.OperatorNotIn:
		return !contains(c.Values, actual)
	case domain.OperatorContains:
		return strings.Contains(actual, c.Value)
	default:
		return false
	}
}

// ValidateConditions checks conditions when a rule is written.
func ValidateConditions(conditions []domain.SLACondition) error {
	for i, c := range conditions {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("condition %d: field required", i)
		}
		switch c.Operator {
		case domain.OperatorEquals, domain.OperatorNotEquals, domain.OperatorContains:
			if len(c.Values) > 0 {
				return fmt.Errorf("condition %d: operator %q takes a single value", i, c.Operator)
			}
			if c.Operator == domain.OperatorContains && c.Value == "" {
				return fmt.Errorf("condition %d: contains needs a non-empty value", i)
			}
		case domain.OperatorIn, domain.OperatorNotIn:
			if len(c.Values) == 0 {
				return fmt.Errorf("condition %d: operator %q takes a list of values", i, c.Operator)
			}
		default:
			return fmt.Errorf("condition %d: unsupported operator %q", i, c.Operator)
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
