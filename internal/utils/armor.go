package utils

import (
	"regexp"
	"strings"
)

const (
	PgpMessageHeader = "-----BEGIN PGP MESSAGE-----"
	PgpMessageFooter = "-----END PGP MESSAGE-----"
)

var armoredBlockRegex = regexp.MustCompile(`(?s)-----BEGIN PGP MESSAGE-----.*?-----END PGP MESSAGE-----`)

// IsEncryptedContent reports whether the text carries the armored PGP
// message signature. Content matching this is never a final render.
func IsEncryptedContent(text string) bool {
	return strings.Contains(text, PgpMessageHeader)
}

// ExtractArmoredBlock returns the first complete armored PGP message block,
// or an empty string when none is present. A header without its footer is
// treated as absent so a truncated cache entry is not fed to the decryptor.
func ExtractArmoredBlock(text string) string {
	return armoredBlockRegex.FindString(text)
}
