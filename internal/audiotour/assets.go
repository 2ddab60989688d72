package audiotour

import (
	"net/url"
	"regexp"
	"strings"
)

// AssetURLs builds public URLs for stored File objects. Every URL points at
// the API's asset route, which redirects to a signed storage URL.
type AssetURLs struct {
	BaseURL string
}

// FileURL returns the public URL of f, or nil when nothing is uploaded.
func (u AssetURLs) FileURL(f File) *string {
	if f.Key == "" {
		return nil
	}
	s := strings.TrimRight(u.BaseURL, "/") + "/api/assets/files/" + f.ID + "/key/" + url.PathEscape(f.Key)
	return &s
}

// FileStorageKey is the live object key of an uploaded File.
func FileStorageKey(fileID, key string) string {
	return "files/" + fileID + "/key/" + key
}

// FilePrefix holds every object of a File.
func FilePrefix(fileID string) string {
	return "files/" + fileID + "/"
}

// VersionPrefix holds every object copied for a published Version.
func VersionPrefix(versionID string) string {
	return "versions/" + versionID + "/"
}

// AssetRef is one distinct asset URL found in a serialized document.
type AssetRef struct {
	FileID string
	// Name is the filename segment exactly as it appears in the URL.
	Name string
}

// Key returns the unescaped object name.
func (r AssetRef) Key() string {
	if k, err := url.PathUnescape(r.Name); err == nil {
		return k
	}
	return r.Name
}

// SourceKey is the live storage key the reference points at.
func (r AssetRef) SourceKey() string {
	return FileStorageKey(r.FileID, r.Key())
}

// VersionKey is the storage key of the copy owned by versionID.
func (r AssetRef) VersionKey(versionID string) string {
	return VersionPrefix(versionID) + r.SourceKey()
}

var assetRefPattern = regexp.MustCompile(`/assets/files/([A-Za-z0-9-]+)/key/([^"\\\s?#]+)`)

// FindAssetRefs returns every distinct live asset reference in doc, in
// order of first appearance.
func FindAssetRefs(doc []byte) []AssetRef {
	var refs []AssetRef
	seen := map[AssetRef]bool{}
	for _, m := range assetRefPattern.FindAllSubmatch(doc, -1) {
		ref := AssetRef{FileID: string(m[1]), Name: string(m[2])}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

// RewriteAssetRefs points every live asset reference in doc at the copy
// stored under versionID's prefix.
func RewriteAssetRefs(doc []byte, versionID string) []byte {
	repl := []byte("/assets/versions/" + versionID + "/files/${1}/key/${2}")
	return assetRefPattern.ReplaceAll(doc, repl)
}
