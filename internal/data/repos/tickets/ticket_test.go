package tickets

import (
	"context"
	"sync"
	"testing"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/data/repos/testutil"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

func TestSetThreadIDIfEmptyFirstWriterWins(t *testing.T) {
	db := testutil.DB(t)
	repo := NewTicketRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	ticket := &types.Ticket{CompanyID: 1, ContactID: 1, Status: "pending"}
	if err := db.Create(ticket).Error; err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	ids := []string{"thread_a", "thread_b", "thread_c", "thread_d"}
	var (
		mu      sync.Mutex
		winners []string
		stored  = map[string]bool{}
		wg      sync.WaitGroup
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			got, won, err := repo.SetThreadIDIfEmpty(dbc, ticket.ID, id)
			if err != nil {
				t.Errorf("SetThreadIDIfEmpty(%s): %v", id, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if won {
				winners = append(winners, id)
			}
			stored[got] = true
		}(id)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("winners: want=1 got=%v", winners)
	}
	if len(stored) != 1 || !stored[winners[0]] {
		t.Fatalf("stored ids: want only %q got=%v", winners[0], stored)
	}
	reloaded, err := repo.GetByID(dbc, 1, ticket.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.ThreadID != winners[0] {
		t.Fatalf("persisted: want=%q got=%q", winners[0], reloaded.ThreadID)
	}
}

func TestUpsertCustomField(t *testing.T) {
	db := testutil.DB(t)
	repo := NewContactRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	contact := &types.Contact{CompanyID: 2, Name: "Ana", Number: "5511988887777"}
	if err := db.Create(contact).Error; err != nil {
		t.Fatalf("create contact: %v", err)
	}
	if err := repo.UpsertCustomField(dbc, contact.ID, "cpf", "111"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.UpsertCustomField(dbc, contact.ID, "cpf", "222"); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := repo.GetByID(dbc, 2, contact.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.ExtraInfo) != 1 || got.ExtraInfo[0].Value != "222" {
		t.Fatalf("extra info: got=%+v", got.ExtraInfo)
	}
	if v, ok := got.Field("cpf"); !ok || v != "222" {
		t.Fatalf("Field(cpf): want=222 got=%q ok=%v", v, ok)
	}
}
