package deb

// archSynonyms maps toolchain architecture names to Debian ones.
// Names missing from the table are already Debian names or are unknown to
// us; both pass through unchanged.
var archSynonyms = map[string]string{
	"x86_64":  "amd64",
	"aarch64": "arm64",
}

// ResolveArchitecture returns the Debian architecture name for arch.
// It is idempotent: resolving an already resolved name returns it unchanged.
func ResolveArchitecture(arch string) string {
	if debArch, ok := archSynonyms[arch]; ok {
		return debArch
	}
	return arch
}
