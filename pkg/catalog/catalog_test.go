package catalog

import (
	"errors"
	"reflect"
	"testing"

	"github.com/vango-dev/cellkit/pkg/cell"
)

func newTestCatalog(t *testing.T) (*Catalog, *cell.Cell[int], *cell.Cell[string]) {
	t.Helper()
	cat := New()
	volume := cell.New(3)
	title := cell.New("hello")
	if err := Add(cat, "volume", volume); err != nil {
		t.Fatalf("Add volume: %v", err)
	}
	if err := Add(cat, "title", title); err != nil {
		t.Fatalf("Add title: %v", err)
	}
	return cat, volume, title
}

func TestCatalogNamesSorted(t *testing.T) {
	cat, _, _ := newTestCatalog(t)
	if got := cat.Names(); !reflect.DeepEqual(got, []string{"title", "volume"}) {
		t.Errorf("expected sorted names, got %v", got)
	}
	if cat.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", cat.Len())
	}
}

func TestCatalogDuplicateAndEmptyName(t *testing.T) {
	cat, _, _ := newTestCatalog(t)
	if err := Add(cat, "volume", cell.New(0)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if err := Add(cat, "", cell.New(0)); err == nil {
		t.Error("expected an error for an empty name")
	}
}

func TestCatalogValueAndSet(t *testing.T) {
	cat, volume, _ := newTestCatalog(t)

	v, err := cat.Value("volume")
	if err != nil || v != 3 {
		t.Fatalf("expected 3, got %v (%v)", v, err)
	}

	// Decoded JSON numbers are float64.
	if err := cat.Set("volume", float64(7)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if volume.Get() != 7 {
		t.Errorf("expected 7, got %d", volume.Get())
	}

	if err := cat.Set("volume", 7.5); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for a fractional value, got %v", err)
	}
	if err := cat.Set("volume", "loud"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for a string, got %v", err)
	}
	if err := cat.Set("missing", 1); !errors.Is(err, ErrUnknownCell) {
		t.Errorf("expected ErrUnknownCell, got %v", err)
	}
	if _, err := cat.Value("missing"); !errors.Is(err, ErrUnknownCell) {
		t.Errorf("expected ErrUnknownCell from Value, got %v", err)
	}
}

func TestCatalogDerivedIsReadOnly(t *testing.T) {
	cat, volume, _ := newTestCatalog(t)
	doubled := cell.Derive1(volume, func(v int) int { return v * 2 })
	if err := AddDerived(cat, "doubled", doubled); err != nil {
		t.Fatal(err)
	}

	if v, _ := cat.Value("doubled"); v != 6 {
		t.Errorf("expected 6, got %v", v)
	}
	if err := cat.Set("doubled", 1); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	e, _ := cat.Get("doubled")
	if e.Kind() != KindDerived || e.Type() != reflect.TypeOf(0) {
		t.Errorf("unexpected entry kind %s type %s", e.Kind(), e.Type())
	}
}

func TestCatalogPulse(t *testing.T) {
	cat := New()
	p := cell.NewPulse()
	if err := AddPulse(cat, "refresh", p); err != nil {
		t.Fatal(err)
	}

	if err := cat.Set("refresh", nil); err != nil {
		t.Fatal(err)
	}
	if err := cat.Set("refresh", nil); err != nil {
		t.Fatal(err)
	}
	if p.TrigTimes() != 2 {
		t.Errorf("expected 2 trigs, got %d", p.TrigTimes())
	}

	if err := cat.Set("refresh", 0); err != nil {
		t.Fatal(err)
	}
	if p.TrigTimes() != 0 {
		t.Errorf("expected reset to 0, got %d", p.TrigTimes())
	}
}

func TestCatalogSnapshotRestore(t *testing.T) {
	cat, volume, title := newTestCatalog(t)
	scratch := cell.New(true)
	if err := Add(cat, "scratch", scratch, Transient()); err != nil {
		t.Fatal(err)
	}
	AddPulse(cat, "tick", cell.NewPulse())

	snap := cat.Snapshot()
	want := map[string]any{"volume": 3, "title": "hello"}
	if !reflect.DeepEqual(snap, want) {
		t.Errorf("expected %v, got %v", want, snap)
	}

	volume.Set(0)
	title.Set("")
	scratch.Set(false)

	err := cat.Restore(map[string]any{
		"volume":  float64(3),
		"title":   "hello",
		"scratch": true,
		"gone":    1,
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if volume.Get() != 3 || title.Get() != "hello" {
		t.Errorf("expected restored values, got %d %q", volume.Get(), title.Get())
	}
	if scratch.Get() {
		t.Error("transient entry must not be restored")
	}
}

func TestCatalogRestoreCollectsErrors(t *testing.T) {
	cat, _, title := newTestCatalog(t)

	err := cat.Restore(map[string]any{"volume": "x", "title": "kept"})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	if title.Get() != "kept" {
		t.Error("a failing entry should not stop the others")
	}
}

func TestCatalogSpreadEntries(t *testing.T) {
	cat := New()
	rows := cell.Wrap([]any{"a", "b"})
	Add(cat, "rows", rows)

	v, _ := cat.Value("rows")
	if !reflect.DeepEqual(v, []any{"a", "b"}) {
		t.Errorf("expected unspread value, got %v", v)
	}

	if err := cat.Set("rows", []any{"c"}); err != nil {
		t.Fatal(err)
	}
	if len(cell.Items(rows)) != 1 {
		t.Errorf("expected the new list to be boxed, got %v", rows.Get())
	}
}

func TestCatalogWatch(t *testing.T) {
	cat, volume, _ := newTestCatalog(t)
	host := cell.NewOwner(nil)
	var changes []Change
	cat.Watch(func(ch Change) { changes = append(changes, ch) }, host)

	volume.Set(4)
	late := cell.New(0)
	Add(cat, "late", late)
	late.Set(1)

	want := []Change{{Name: "volume", Value: 4}, {Name: "late", Value: 1}}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("expected %v, got %v", want, changes)
	}

	host.Dispose()
	volume.Set(5)
	Add(cat, "later", cell.New(0))
	if len(changes) != 2 {
		t.Errorf("watch should end with its host, got %v", changes)
	}
	if volume.ConnectionCount(cell.Changed) != 0 {
		t.Errorf("expected watch connections to be removed, got %d", volume.ConnectionCount(cell.Changed))
	}
}

func TestConvert(t *testing.T) {
	type point struct {
		X, Y int
	}

	tests := []struct {
		name    string
		run     func() (any, error)
		want    any
		wantErr bool
	}{
		{"int from float", func() (any, error) { return Convert[int](float64(2)) }, 2, false},
		{"uint8 overflow", func() (any, error) { return Convert[uint8](300) }, nil, true},
		{"uint from negative", func() (any, error) { return Convert[uint](-1) }, nil, true},
		{"float from int", func() (any, error) { return Convert[float64](3) }, 3.0, false},
		{"string passthrough", func() (any, error) { return Convert[string]("x") }, "x", false},
		{"any passthrough", func() (any, error) { return Convert[any](true) }, true, false},
		{"nil pointer", func() (any, error) { return Convert[*int](nil) }, (*int)(nil), false},
		{"nil int", func() (any, error) { return Convert[int](nil) }, nil, true},
		{"struct from map", func() (any, error) {
			return Convert[point](map[string]any{"X": 1.0, "Y": 2.0})
		}, point{1, 2}, false},
		{"typed slice", func() (any, error) { return Convert[[]int]([]any{1.0, 2.0}) }, []int{1, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.run()
			if tt.wantErr {
				if !errors.Is(err, ErrTypeMismatch) {
					t.Errorf("expected ErrTypeMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}
