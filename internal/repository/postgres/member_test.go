package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

var memberCols = []string{
	"id", "email", "first_name", "last_name", "status",
	"topics", "defaults", "last_activity_at", "last_contacted_at", "created_at",
}

func TestMemberRepo_MembersWithTopics(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("creating mock: %v", err)
	}
	defer db.Close()

	id := uuid.New()
	rows := sqlmock.NewRows(memberCols).
		AddRow(id.String(), "avery@example.com", "Avery", "", string(domain.MemberActive),
			"{scifi,noir}", `{"first_name":"Avery"}`, nil, nil, time.Now().UTC())

	mock.ExpectQuery("SELECT (.+) FROM mailflow_members").
		WithArgs(domain.MemberActive, 100).
		WillReturnRows(rows)

	members, err := NewMemberRepo(db).MembersWithTopics(context.Background(), 100)
	if err != nil {
		t.Fatalf("MembersWithTopics() error: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}
	if members[0].ID != id {
		t.Error("wrong member id scanned")
	}
	if len(members[0].Topics) != 2 || members[0].Topics[0] != "scifi" {
		t.Errorf("topics = %v, want [scifi noir]", members[0].Topics)
	}
	if members[0].Defaults["first_name"] != "Avery" {
		t.Errorf("defaults = %v", members[0].Defaults)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestMemberRepo_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("creating mock: %v", err)
	}
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM mailflow_members WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(memberCols))

	if _, err := NewMemberRepo(db).GetByID(context.Background(), id); err != ErrMemberNotFound {
		t.Errorf("GetByID() error = %v, want ErrMemberNotFound", err)
	}
}
