// Package verifier implements cheap synchronous checks on raw upload bytes:
// magic-byte signature verification, content hashing and denylist lookup.
package verifier

import (
	"bytes"
	"fmt"
	"strings"
)

// UnknownType is reported when no signature in the table matches.
const UnknownType = "unknown"

// Signature describes the magic bytes that identify a content type.
type Signature struct {
	ContentType string
	Magic       []byte
	Offset      int
}

// signatures is ordered so longer, more specific magics win over short ones.
var signatures = []Signature{
	{ContentType: "image/png", Magic: []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}},
	{ContentType: "application/x-cfb", Magic: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}},
	{ContentType: "application/x-7z-compressed", Magic: []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}},
	{ContentType: "application/vnd.rar", Magic: []byte("Rar!\x1A\x07")},
	{ContentType: "image/gif", Magic: []byte("GIF87a")},
	{ContentType: "image/gif", Magic: []byte("GIF89a")},
	{ContentType: "application/pdf", Magic: []byte("%PDF")},
	{ContentType: "application/zip", Magic: []byte("PK\x03\x04")},
	{ContentType: "application/zip", Magic: []byte("PK\x05\x06")},
	{ContentType: "application/x-executable", Magic: []byte{0x7F, 'E', 'L', 'F'}},
	{ContentType: "image/tiff", Magic: []byte("II*\x00")},
	{ContentType: "image/tiff", Magic: []byte("MM\x00*")},
	{ContentType: "image/webp", Magic: []byte("WEBP"), Offset: 8},
	{ContentType: "audio/wav", Magic: []byte("WAVE"), Offset: 8},
	{ContentType: "video/mp4", Magic: []byte("ftyp"), Offset: 4},
	{ContentType: "image/jpeg", Magic: []byte{0xFF, 0xD8, 0xFF}},
	{ContentType: "audio/mpeg", Magic: []byte("ID3")},
	{ContentType: "application/gzip", Magic: []byte{0x1F, 0x8B}},
	{ContentType: "application/x-msdownload", Magic: []byte("MZ")},
}

// containerFormats lists claimed types that legitimately carry another
// format's signature, keyed by the detected container type.
var containerFormats = map[string]map[string]struct{}{
	"application/zip": {
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
		"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
		"application/vnd.oasis.opendocument.text":                                   {},
		"application/vnd.oasis.opendocument.spreadsheet":                            {},
		"application/vnd.oasis.opendocument.presentation":                           {},
		"application/epub+zip":                                                      {},
		"application/java-archive":                                                  {},
	},
	"application/x-cfb": {
		"application/msword":            {},
		"application/vnd.ms-excel":      {},
		"application/vnd.ms-powerpoint": {},
		"application/vnd.ms-outlook":    {},
	},
}

// typeAliases maps non-canonical spellings to the type used in the table.
var typeAliases = map[string]string{
	"image/jpg":                    "image/jpeg",
	"image/pjpeg":                  "image/jpeg",
	"application/x-pdf":            "application/pdf",
	"application/x-zip-compressed": "application/zip",
	"application/x-zip":            "application/zip",
	"application/x-rar-compressed": "application/vnd.rar",
	"application/x-gzip":           "application/gzip",
	"audio/x-wav":                  "audio/wav",
	"audio/wave":                   "audio/wav",
	"audio/mp3":                    "audio/mpeg",
	"application/x-dosexec":        "application/x-msdownload",
	"application/x-elf":            "application/x-executable",

	"application/vnd.microsoft.portable-executable": "application/x-msdownload",
}

// SignatureResult is the verdict of VerifySignature.
//
// Valid=false is a spoofing signal, not a rejection; callers decide what to do with it.
type SignatureResult struct {
	Valid        bool
	ClaimedType  string
	DetectedType string
	Error        string
}

// VerifySignature compares the magic bytes of content against claimedType.
func VerifySignature(content []byte, claimedType string) SignatureResult {
	claimed := NormalizeContentType(claimedType)
	detected, ok := DetectType(content)
	if !ok {
		if IsPlainText(claimed) {
			return SignatureResult{Valid: true, ClaimedType: claimed, DetectedType: claimed}
		}
		return SignatureResult{Valid: true, ClaimedType: claimed, DetectedType: UnknownType}
	}

	if detected == claimed {
		return SignatureResult{Valid: true, ClaimedType: claimed, DetectedType: detected}
	}
	if members, ok := containerFormats[detected]; ok {
		if _, ok := members[claimed]; ok {
			return SignatureResult{Valid: true, ClaimedType: claimed, DetectedType: detected}
		}
	}

	return SignatureResult{
		Valid:        false,
		ClaimedType:  claimed,
		DetectedType: detected,
		Error:        fmt.Sprintf("content signature %s does not match claimed type %s", detected, claimed),
	}
}

// DetectType returns the first table entry whose magic matches content.
func DetectType(content []byte) (string, bool) {
	for _, sig := range signatures {
		end := sig.Offset + len(sig.Magic)
		if len(content) < end {
			continue
		}
		if bytes.Equal(content[sig.Offset:end], sig.Magic) {
			return sig.ContentType, true
		}
	}
	return "", false
}

// NormalizeContentType lowercases, strips parameters and resolves aliases.
func NormalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if alias, ok := typeAliases[ct]; ok {
		return alias
	}
	return ct
}

// IsPlainText reports whether contentType belongs to the text family,
// which has no magic signature.
func IsPlainText(contentType string) bool {
	ct := NormalizeContentType(contentType)
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	switch ct {
	case "application/json",
		"application/xml",
		"application/javascript",
		"application/x-ndjson",
		"application/yaml",
		"application/x-yaml",
		"image/svg+xml":
		return true
	}
	return false
}
