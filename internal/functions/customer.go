package functions

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type findCustomerArgs struct {
	Field string `json:"field"`
}

const findCustomerSchema = `{
  "type": "object",
  "properties": {"field": {"type": "string", "minLength": 1}},
  "required": ["field"]
}`

// find_customer reads a built-in or custom field of the ticket's contact.
func (d *Deps) findCustomer() Function {
	return newFunc("find_customer", findCustomerSchema, func(ctx context.Context, a findCustomerArgs, acct Account) (string, error) {
		t, err := d.Tickets.GetByID(dbctx.Context{Ctx: ctx}, acct.CompanyID, acct.TicketID)
		if err != nil {
			return "", fmt.Errorf("load ticket %d: %w", acct.TicketID, err)
		}
		if t == nil || t.Contact == nil {
			return "null", nil
		}
		v, ok := t.Contact.Field(strings.TrimSpace(a.Field))
		if !ok {
			return "false", nil
		}
		if strings.TrimSpace(v) == "" {
			return "null", nil
		}
		return v, nil
	})
}

type registerCustomerArgs struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

const registerCustomerSchema = `{
  "type": "object",
  "properties": {
    "field": {"type": "string"},
    "value": {"type": "string"}
  },
  "required": ["field", "value"]
}`

// register_customer stores a field on the ticket's contact. The phone
// number is owned by the WhatsApp session and never overwritten.
func (d *Deps) registerCustomer() Function {
	return newFunc("register_customer", registerCustomerSchema, func(ctx context.Context, a registerCustomerArgs, acct Account) (string, error) {
		dbc := dbctx.Context{Ctx: ctx}
		field := strings.TrimSpace(a.Field)
		value := strings.TrimSpace(a.Value)
		c, err := d.Contacts.GetByID(dbc, acct.CompanyID, acct.ContactID)
		if err != nil {
			return "", fmt.Errorf("load contact %d: %w", acct.ContactID, err)
		}
		if c == nil || field == "" {
			return "null", nil
		}
		switch field {
		case "number":
			return "true", nil
		case "name", "email":
			if value == "" || (field == "email" && !emailPattern.MatchString(value)) {
				return "null", nil
			}
			if err := d.Contacts.UpdateFields(dbc, c.ID, map[string]interface{}{field: value}); err != nil {
				return "", fmt.Errorf("update contact %s: %w", field, err)
			}
		default:
			if value == "" {
				return "null", nil
			}
			if err := d.Contacts.UpsertCustomField(dbc, c.ID, field, value); err != nil {
				return "", fmt.Errorf("upsert contact field %s: %w", field, err)
			}
		}
		return "true", nil
	})
}
