// ABOUTME: Product identification announced in client/hello
// ABOUTME: Version is overridden at build time with -ldflags
package version

// Version can be set with -ldflags "-X github.com/Sendspin/sendspin-companion/internal/version.Version=1.2.3"
var Version = "0.3.0"

const (
	Product      = "Sendspin Companion"
	Manufacturer = "Sendspin"
)

// String renders the product and version for logs and CLI output
func String() string {
	return Product + " " + Version
}
