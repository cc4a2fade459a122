package registry

import (
	"fmt"
	"testing"
)

// invokerStub stands in for an llm.Invoker in these tests without this
// package importing pkg/llm (registry stays dependency-free).
type invokerStub struct {
	Role  string
	Model string
}

func TestBaseRegistry_Register(t *testing.T) {
	reg := NewBaseRegistry[invokerStub]()

	tests := []struct {
		name      string
		roleName  string
		component invokerStub
		wantErr   bool
	}{
		{
			name:      "register main invoker",
			roleName:  "main",
			component: invokerStub{Role: "main", Model: "gemini-2.5-pro"},
			wantErr:   false,
		},
		{
			name:      "register with empty role name",
			roleName:  "",
			component: invokerStub{Role: "", Model: "gemini-2.5-flash"},
			wantErr:   true,
		},
		{
			name:      "re-register the same role",
			roleName:  "main",
			component: invokerStub{Role: "main", Model: "claude-haiku"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.roleName, tt.component)
			if (err != nil) != tt.wantErr {
				t.Errorf("BaseRegistry.Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBaseRegistry_Get(t *testing.T) {
	reg := NewBaseRegistry[invokerStub]()

	main := invokerStub{Role: "main", Model: "gemini-2.5-pro"}
	if err := reg.Register("main", main); err != nil {
		t.Fatalf("failed to register main invoker: %v", err)
	}

	tests := []struct {
		name          string
		roleName      string
		wantComponent invokerStub
		wantOk        bool
	}{
		{name: "get registered role", roleName: "main", wantComponent: main, wantOk: true},
		{name: "get unregistered role", roleName: "judge", wantComponent: invokerStub{}, wantOk: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			component, ok := reg.Get(tt.roleName)
			if ok != tt.wantOk {
				t.Errorf("BaseRegistry.Get() ok = %v, want %v", ok, tt.wantOk)
			}
			if component != tt.wantComponent {
				t.Errorf("BaseRegistry.Get() component = %+v, want %+v", component, tt.wantComponent)
			}
		})
	}
}

func TestBaseRegistry_List(t *testing.T) {
	reg := NewBaseRegistry[invokerStub]()

	if components := reg.List(); len(components) != 0 {
		t.Errorf("BaseRegistry.List() length = %v, want 0", len(components))
	}

	roles := map[string]invokerStub{
		"main":  {Role: "main", Model: "gemini-2.5-pro"},
		"fast":  {Role: "fast", Model: "gemini-2.5-flash"},
		"judge": {Role: "judge", Model: "claude-haiku"},
	}
	for name, component := range roles {
		if err := reg.Register(name, component); err != nil {
			t.Fatalf("failed to register %s: %v", name, err)
		}
	}

	components := reg.List()
	if len(components) != len(roles) {
		t.Errorf("BaseRegistry.List() length = %v, want %v", len(components), len(roles))
	}
	byModel := make(map[string]bool, len(components))
	for _, c := range components {
		byModel[c.Model] = true
	}
	for _, component := range roles {
		if !byModel[component.Model] {
			t.Errorf("BaseRegistry.List() missing component with model %s", component.Model)
		}
	}
}

func TestBaseRegistry_Names(t *testing.T) {
	reg := NewBaseRegistry[invokerStub]()

	if names := reg.Names(); len(names) != 0 {
		t.Errorf("BaseRegistry.Names() = %v, want empty", names)
	}

	_ = reg.Register("judge", invokerStub{Role: "judge"})
	_ = reg.Register("main", invokerStub{Role: "main"})
	_ = reg.Register("fast", invokerStub{Role: "fast"})

	names := reg.Names()
	want := []string{"fast", "judge", "main"}
	if len(names) != len(want) {
		t.Fatalf("BaseRegistry.Names() length = %v, want %v", len(names), len(want))
	}
	for i, n := range names {
		if n != want[i] {
			t.Errorf("BaseRegistry.Names()[%d] = %q, want %q (expected sorted order)", i, n, want[i])
		}
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	reg := NewBaseRegistry[invokerStub]()

	if err := reg.Register("main", invokerStub{Role: "main"}); err != nil {
		t.Fatalf("failed to register main invoker: %v", err)
	}

	tests := []struct {
		name     string
		roleName string
		wantErr  bool
	}{
		{name: "remove registered role", roleName: "main", wantErr: false},
		{name: "remove unregistered role", roleName: "judge", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Remove(tt.roleName)
			if (err != nil) != tt.wantErr {
				t.Errorf("BaseRegistry.Remove() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if _, exists := reg.Get(tt.roleName); exists {
					t.Errorf("BaseRegistry.Remove() role %s still exists after removal", tt.roleName)
				}
			}
		})
	}
}

func TestBaseRegistry_Count(t *testing.T) {
	reg := NewBaseRegistry[invokerStub]()

	if count := reg.Count(); count != 0 {
		t.Errorf("BaseRegistry.Count() = %v, want 0", count)
	}

	roles := []string{"main", "fast"}
	for i, name := range roles {
		if err := reg.Register(name, invokerStub{Role: name}); err != nil {
			t.Fatalf("failed to register %s: %v", name, err)
		}
		if count := reg.Count(); count != i+1 {
			t.Errorf("BaseRegistry.Count() = %v, want %v", count, i+1)
		}
	}
}

func TestBaseRegistry_Clear(t *testing.T) {
	reg := NewBaseRegistry[invokerStub]()

	roles := []string{"main", "fast"}
	for _, name := range roles {
		if err := reg.Register(name, invokerStub{Role: name}); err != nil {
			t.Fatalf("failed to register %s: %v", name, err)
		}
	}
	if count := reg.Count(); count != len(roles) {
		t.Errorf("BaseRegistry.Count() before clear = %v, want %v", count, len(roles))
	}

	reg.Clear()

	if count := reg.Count(); count != 0 {
		t.Errorf("BaseRegistry.Count() after clear = %v, want 0", count)
	}
	if names := reg.Names(); len(names) != 0 {
		t.Errorf("BaseRegistry.Names() after clear = %v, want empty", names)
	}
	for _, name := range roles {
		if _, exists := reg.Get(name); exists {
			t.Errorf("BaseRegistry.Get() role %s still exists after clear", name)
		}
	}
}

func TestBaseRegistry_Concurrency(t *testing.T) {
	reg := NewBaseRegistry[invokerStub]()

	done := make(chan bool, 2)

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			name := fmt.Sprintf("invoker-%d", i)
			_ = reg.Register(name, invokerStub{Role: name})
		}
	}()

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			reg.Get(fmt.Sprintf("invoker-%d", i))
			reg.Count()
			reg.List()
			reg.Names()
		}
	}()

	<-done
	<-done

	if count := reg.Count(); count != 100 {
		t.Errorf("BaseRegistry.Count() after concurrent access = %v, want 100", count)
	}
}
