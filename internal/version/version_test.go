// ABOUTME: Tests for product identification
// ABOUTME: Tests the identity sent to servers and its display form
package version

import (
	"regexp"
	"testing"
)

var semver = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

func TestVersionIsSemver(t *testing.T) {
	if !semver.MatchString(Version) {
		t.Errorf("version %q is not semver", Version)
	}
}

func TestProductIdentity(t *testing.T) {
	if Product != "Sendspin Companion" {
		t.Errorf("expected product Sendspin Companion, got %s", Product)
	}
	if Manufacturer != "Sendspin" {
		t.Errorf("expected manufacturer Sendspin, got %s", Manufacturer)
	}
}

func TestString(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.2.3-rc.1"
	if got := String(); got != "Sendspin Companion 1.2.3-rc.1" {
		t.Errorf("unexpected string %q", got)
	}
}
