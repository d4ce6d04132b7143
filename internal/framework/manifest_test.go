package framework

import (
	"errors"
	"testing"

	core "github.com/openmuni/grievance-core/internal/app/core/service"
)

func TestManifest_Normalize(t *testing.T) {
	m := &Manifest{
		Name:         "  lifecycle  ",
		Domain:       "  complaints  ",
		Description:  "  tracks complaint state  ",
		Version:      "  1.0.0  ",
		Layer:        "  ENGINE  ",
		RequiresAPIs: []string{"store", "store", "audit"},
		DependsOn:    []string{"audit", "audit", "reference"},
		Capabilities: []string{"transition", "transition", "escalate"},
		Quotas:       map[string]string{"  per_minute  ": "  60  ", "": "empty", "valid": ""},
		Tags:         map[string]string{"  tier  ": "  core  ", "": "empty"},
	}

	m.Normalize()

	if m.Name != "lifecycle" {
		t.Errorf("Name = %q, want 'lifecycle'", m.Name)
	}
	if m.Domain != "complaints" {
		t.Errorf("Domain = %q, want 'complaints'", m.Domain)
	}
	if m.Layer != "engine" {
		t.Errorf("Layer = %q, want 'engine'", m.Layer)
	}
	if len(m.RequiresAPIs) != 2 {
		t.Errorf("RequiresAPIs len = %d, want 2", len(m.RequiresAPIs))
	}
	if len(m.DependsOn) != 2 {
		t.Errorf("DependsOn len = %d, want 2", len(m.DependsOn))
	}
	if len(m.Capabilities) != 2 {
		t.Errorf("Capabilities len = %d, want 2", len(m.Capabilities))
	}
	if v, ok := m.Quotas["per_minute"]; !ok || v != "60" {
		t.Errorf("Quotas[per_minute] = %q, %v; want '60', true", v, ok)
	}
	if _, ok := m.Quotas[""]; ok {
		t.Error("empty key should be removed from Quotas")
	}
	if v, ok := m.Tags["tier"]; !ok || v != "core" {
		t.Errorf("Tags[tier] = %q, %v; want 'core', true", v, ok)
	}
}

func TestManifest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		m       *Manifest
		wantErr bool
	}{
		{"nil manifest", nil, false},
		{"valid", &Manifest{Name: "lifecycle"}, false},
		{"missing name", &Manifest{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestManifest_IsEnabled(t *testing.T) {
	var nilManifest *Manifest
	if !nilManifest.IsEnabled() {
		t.Error("nil manifest should be enabled by default")
	}

	m := &Manifest{}
	if !m.IsEnabled() {
		t.Error("unset Enabled should default to true")
	}
	m.SetEnabled(false)
	if m.IsEnabled() {
		t.Error("should not be enabled after SetEnabled(false)")
	}
	m.SetEnabled(true)
	if !m.IsEnabled() {
		t.Error("should be enabled after SetEnabled(true)")
	}
}

func TestManifest_HasCapability(t *testing.T) {
	m := &Manifest{Capabilities: []string{"transition", "Escalate"}}

	if !m.HasCapability("transition") {
		t.Error("should have transition capability")
	}
	if !m.HasCapability("ESCALATE") {
		t.Error("capability check should be case-insensitive")
	}
	if m.HasCapability("resolve") {
		t.Error("should not have resolve capability")
	}

	var nilM *Manifest
	if nilM.HasCapability("transition") {
		t.Error("nil manifest should not have any capability")
	}
}

func TestManifest_Tags(t *testing.T) {
	m := &Manifest{}
	if m.HasTag("tier") {
		t.Error("should not have tag initially")
	}
	m.SetTag("tier", "core")
	if !m.HasTag("tier") {
		t.Error("should have tag after setting")
	}
	v, ok := m.GetTag("tier")
	if !ok || v != "core" {
		t.Errorf("GetTag = %q, %v; want 'core', true", v, ok)
	}
	if _, ok := m.GetTag("missing"); ok {
		t.Error("should not find nonexistent tag")
	}
}

func TestManifest_RequiresAPI(t *testing.T) {
	m := &Manifest{RequiresAPIs: []string{"store", "audit"}}
	if !m.RequiresAPI("store") {
		t.Error("should require store API")
	}
	if !m.RequiresAPI("STORE") {
		t.Error("API check should be case-insensitive")
	}
	if m.RequiresAPI("classifier") {
		t.Error("should not require classifier API")
	}
}

func TestManifest_DependsOnService(t *testing.T) {
	m := &Manifest{DependsOn: []string{"audit", "Reference"}}
	if !m.DependsOnService("audit") {
		t.Error("should depend on audit")
	}
	if !m.DependsOnService("REFERENCE") {
		t.Error("dependency check should be case-insensitive")
	}
	if m.DependsOnService("classifier") {
		t.Error("should not depend on classifier")
	}
}

func TestManifest_Quotas(t *testing.T) {
	m := &Manifest{}
	if _, ok := m.GetQuota("per_minute"); ok {
		t.Error("should not have quota initially")
	}
	m.SetQuota("per_minute", "60")
	v, ok := m.GetQuota("per_minute")
	if !ok || v != "60" {
		t.Errorf("GetQuota = %q, %v; want '60', true", v, ok)
	}
}

func TestManifest_Merge(t *testing.T) {
	base := &Manifest{
		Name:         "base",
		Domain:       "domain1",
		Description:  "base service",
		RequiresAPIs: []string{"store"},
		DependsOn:    []string{"audit"},
		Capabilities: []string{"transition"},
		Quotas:       map[string]string{"per_minute": "60"},
		Tags:         map[string]string{"tier": "core"},
	}

	override := &Manifest{
		Name:         "override",
		Version:      "2.0.0",
		RequiresAPIs: []string{"reference"},
		DependsOn:    []string{"classifier"},
		Capabilities: []string{"escalate"},
		Quotas:       map[string]string{"per_hour": "500"},
		Tags:         map[string]string{"zone": "north"},
	}

	base.Merge(override)

	if base.Name != "override" {
		t.Errorf("Name = %q, want 'override'", base.Name)
	}
	if base.Version != "2.0.0" {
		t.Errorf("Version = %q, want '2.0.0'", base.Version)
	}
	if base.Domain != "domain1" {
		t.Errorf("Domain = %q, want 'domain1'", base.Domain)
	}
	if len(base.RequiresAPIs) != 2 {
		t.Errorf("RequiresAPIs len = %d, want 2", len(base.RequiresAPIs))
	}
	if base.Quotas["per_minute"] != "60" {
		t.Error("original quota should be preserved")
	}
	if base.Quotas["per_hour"] != "500" {
		t.Error("override quota should be added")
	}
	if base.Tags["tier"] != "core" {
		t.Error("original tag should be preserved")
	}
	if base.Tags["zone"] != "north" {
		t.Error("override tag should be added")
	}
}

func TestManifest_Clone(t *testing.T) {
	original := &Manifest{
		Name:         "lifecycle",
		Domain:       "complaints",
		Version:      "1.0.0",
		Layer:        "engine",
		RequiresAPIs: []string{"store"},
		Capabilities: []string{"transition"},
		Quotas:       map[string]string{"per_minute": "60"},
	}
	original.SetEnabled(true)

	clone := original.Clone()
	if clone.Name != original.Name {
		t.Errorf("Name = %q, want %q", clone.Name, original.Name)
	}
	if clone.IsEnabled() != original.IsEnabled() {
		t.Error("Enabled should match")
	}

	clone.Name = "modified"
	clone.RequiresAPIs[0] = "audit"
	clone.Quotas["per_minute"] = "120"

	if original.Name == "modified" {
		t.Error("original Name should not change")
	}
	if original.RequiresAPIs[0] == "audit" {
		t.Error("original RequiresAPIs should not change")
	}
	if original.Quotas["per_minute"] == "120" {
		t.Error("original Quotas should not change")
	}
}

func TestManifest_ToDescriptor(t *testing.T) {
	m := &Manifest{
		Name:         "lifecycle",
		Domain:       "complaints",
		Layer:        "engine",
		Capabilities: []string{"transition", "escalate"},
	}

	d := m.ToDescriptor()
	if d.Name != "lifecycle" {
		t.Errorf("Name = %q, want 'lifecycle'", d.Name)
	}
	if len(d.Capabilities) != 2 {
		t.Errorf("Capabilities len = %d, want 2", len(d.Capabilities))
	}
}

func TestManifestFromDescriptor(t *testing.T) {
	d := core.Descriptor{
		Name:         "lifecycle",
		Domain:       "complaints",
		Layer:        core.LayerEngine,
		Capabilities: []string{"transition"},
	}
	m := ManifestFromDescriptor(d)
	if m.Name != "lifecycle" {
		t.Errorf("Name = %q, want 'lifecycle'", m.Name)
	}
	if m.Domain != "complaints" {
		t.Errorf("Domain = %q, want 'complaints'", m.Domain)
	}
	if m.Layer != "engine" {
		t.Errorf("Layer = %q, want 'engine'", m.Layer)
	}
}

func TestManifestValidator(t *testing.T) {
	customErr := errors.New("custom validation failed")
	validator := ManifestValidatorFunc(func(m *Manifest) error {
		if m.Version == "" {
			return customErr
		}
		return nil
	})

	t.Run("validation fails", func(t *testing.T) {
		m := &Manifest{Name: "lifecycle"}
		if err := m.ValidateWith(validator); err != customErr {
			t.Errorf("ValidateWith() = %v, want %v", err, customErr)
		}
	})

	t.Run("validation passes", func(t *testing.T) {
		m := &Manifest{Name: "lifecycle", Version: "1.0.0"}
		if err := m.ValidateWith(validator); err != nil {
			t.Errorf("ValidateWith() = %v, want nil", err)
		}
	})

	t.Run("nil validator", func(t *testing.T) {
		m := &Manifest{Name: "lifecycle"}
		if err := m.ValidateWith(nil); err != nil {
			t.Errorf("ValidateWith(nil) = %v, want nil", err)
		}
	})
}

func TestManifest_NilReceiver(t *testing.T) {
	var m *Manifest
	m.Normalize()

	if m.HasCapability("test") || m.HasTag("test") || m.RequiresAPI("test") || m.DependsOnService("test") {
		t.Error("nil manifest predicates should all return false")
	}
	if _, ok := m.GetTag("test"); ok {
		t.Error("nil manifest GetTag should return false")
	}
	if m.Clone() != nil {
		t.Error("nil manifest Clone should return nil")
	}
	if d := m.ToDescriptor(); d.Name != "" {
		t.Error("nil manifest ToDescriptor should return empty descriptor")
	}
}
