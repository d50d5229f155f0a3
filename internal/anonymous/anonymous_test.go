package anonymous

import "testing"

func TestPolicy_DisabledAllowsEverything(t *testing.T) {
	p := New(false, []string{"host"})
	if !p.Allowed("User-Agent") {
		t.Error("Allowed(User-Agent) = false with policy disabled, want true")
	}
}

func TestPolicy_EnabledRestrictsToAllowList(t *testing.T) {
	p := New(true, []string{"Host", "Accept"})
	if !p.Allowed("host") {
		t.Error("Allowed(host) = false, want true (case-insensitive match)")
	}
	if p.Allowed("User-Agent") {
		t.Error("Allowed(User-Agent) = true, want false")
	}
}

func TestPolicy_NilPolicyIsDisabled(t *testing.T) {
	var p *Policy
	if p.Enabled() {
		t.Error("nil Policy reports enabled")
	}
	if !p.Allowed("anything") {
		t.Error("nil Policy should allow everything")
	}
}
