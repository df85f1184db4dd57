package inputval

import (
	"errors"
	"testing"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type sampleInput struct {
	Title    string `json:"title" validate:"required,max=10" label:"Title"`
	Slug     string `json:"slug" validate:"omitempty,slug" label:"Slug"`
	ParentID string `json:"parent_id" validate:"omitempty,objectid" label:"Parent"`
	Role     string `json:"role" validate:"omitempty,role" label:"Role"`
	Position int    `json:"position" validate:"gte=-1" label:"Position"`
}

func TestValidate_Valid(t *testing.T) {
	in := sampleInput{
		Title:    "Home",
		Slug:     " Home-Page ",
		ParentID: primitive.NewObjectID().Hex(),
		Role:     "Editor",
		Position: -1,
	}
	res := Validate(in)
	if res.HasErrors() {
		t.Fatalf("Validate() errors = %v", res.All())
	}
	if res.Err() != nil {
		t.Error("Err() should be nil without errors")
	}
}

func TestValidate_Messages(t *testing.T) {
	tests := []struct {
		name  string
		in    sampleInput
		field string
		want  string
	}{
		{"required", sampleInput{}, "title", "Title is required."},
		{"max", sampleInput{Title: "much too long title"}, "title", "Title must be at most 10 characters."},
		{"slug", sampleInput{Title: "x", Slug: "Not A Slug"}, "slug", "Slug may only contain lowercase letters, digits, '-' and '_'."},
		{"objectid", sampleInput{Title: "x", ParentID: "nope"}, "parent_id", "Parent is not a valid ID."},
		{"role", sampleInput{Title: "x", Role: "owner"}, "role", "Role must be one of: viewer, editor, admin."},
		{"gte", sampleInput{Title: "x", Position: -2}, "position", "Position must be at least -1."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(&tt.in)
			if !res.HasErrors() {
				t.Fatal("Validate() expected errors")
			}
			fields := res.Fields()
			if got := fields[tt.field]; got != tt.want {
				t.Errorf("Fields()[%q] = %q, want %q (all: %v)", tt.field, got, tt.want, fields)
			}
		})
	}
}

func TestResult_Err(t *testing.T) {
	res := Validate(sampleInput{})
	err := res.Err()
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("Err() = %v, want validation", err)
	}
	if apperr.Message(err) != res.First() {
		t.Errorf("Err() message = %q, want %q", apperr.Message(err), res.First())
	}
}

func TestIsValidObjectID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{primitive.NewObjectID().Hex(), true},
		{"", false},
		{"   ", false},
		{"not-an-id", false},
		{"507f1f77bcf86cd79943901", false},
	}
	for _, tt := range tests {
		if got := IsValidObjectID(tt.id); got != tt.want {
			t.Errorf("IsValidObjectID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestParseObjectID(t *testing.T) {
	want := primitive.NewObjectID()
	got, err := ParseObjectID(" "+want.Hex()+" ", "Page ID")
	if err != nil || got != want {
		t.Fatalf("ParseObjectID() = %v, %v", got, err)
	}

	_, err = ParseObjectID("nope", "Page ID")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("ParseObjectID(nope) error = %v, want validation", err)
	}
	if apperr.Message(err) != "Page ID is not a valid ID" {
		t.Errorf("message = %q", apperr.Message(err))
	}
}

func TestParseOptionalObjectID(t *testing.T) {
	empty := ""
	if id, err := ParseOptionalObjectID(&empty, "Parent"); id != nil || err != nil {
		t.Errorf("empty = %v, %v", id, err)
	}
	if id, err := ParseOptionalObjectID(nil, "Parent"); id != nil || err != nil {
		t.Errorf("nil = %v, %v", id, err)
	}
	bad := "zz"
	if _, err := ParseOptionalObjectID(&bad, "Parent"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad error = %v", err)
	}
	hex := primitive.NewObjectID().Hex()
	if id, err := ParseOptionalObjectID(&hex, "Parent"); err != nil || id.Hex() != hex {
		t.Errorf("valid = %v, %v", id, err)
	}
}
