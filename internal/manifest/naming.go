package manifest

import "fmt"

// FootPrintFileName is the file recording which application version last
// used the cache.
const FootPrintFileName = "ApplicationFootPrint.bytes"

// VersionFileName returns the name of the file holding the latest version of
// packageName.
func VersionFileName(packageName string) string {
	return packageName + ".version"
}

// HashFileName returns the name of the file holding the hash of a manifest.
func HashFileName(packageName, packageVersion string) string {
	return fmt.Sprintf("%s_%s.hash", packageName, packageVersion)
}

// FileName returns the name of the manifest file of a package version.
func FileName(packageName, packageVersion string) string {
	return fmt.Sprintf("%s_%s.bytes", packageName, packageVersion)
}
