package commands

import (
	"errors"
	"testing"

	"github.com/hyperjump/shirabe/internal/models"
)

func TestRegisterAssignsID(t *testing.T) {
	r := NewStaticRegistry()
	id := r.Register(models.Command{Name: "Reload"}, nil)
	if id == "" {
		t.Fatal("blank id should be replaced with a generated one")
	}
	keep := r.Register(models.Command{ID: "app:open", Name: "Open"}, nil)
	if keep != "app:open" {
		t.Errorf("explicit id should be kept: got %q", keep)
	}
}

func TestListReturnsCopy(t *testing.T) {
	r := NewStaticRegistry()
	r.Register(models.Command{ID: "a", Name: "A"}, nil)
	r.Register(models.Command{ID: "b", Name: "B"}, nil)

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("list: got %d commands", len(list))
	}
	list[0].Name = "mutated"
	if r.List()[0].Name != "A" {
		t.Error("List should return a copy, not the backing slice")
	}
}

func TestExecute(t *testing.T) {
	r := NewStaticRegistry()
	ran := false
	r.Register(models.Command{ID: "run", Name: "Run"}, func() error {
		ran = true
		return nil
	})
	wantErr := errors.New("boom")
	r.Register(models.Command{ID: "fail", Name: "Fail"}, func() error { return wantErr })
	r.Register(models.Command{ID: "noop", Name: "Noop"}, nil)

	if err := r.Execute("run"); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("handler did not run")
	}
	if err := r.Execute("fail"); !errors.Is(err, wantErr) {
		t.Errorf("fail: got %v", err)
	}
	if err := r.Execute("noop"); err != nil {
		t.Errorf("nil handler should succeed: got %v", err)
	}
	if err := r.Execute("missing"); err == nil {
		t.Error("unknown id should error")
	}
}
