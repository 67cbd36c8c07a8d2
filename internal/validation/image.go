package validation

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

var dataURLRegex = regexp.MustCompile(`^data:image/(png|jpe?g|gif|webp);base64,`)

// IsBase64Image reports whether s is an inline base64 image, meaning the
// user picked a new photo that still has to be uploaded.
func IsBase64Image(s string) bool {
	return dataURLRegex.MatchString(s)
}

// DecodeDataURL returns the bytes and content type of a base64 image data URL.
func DecodeDataURL(s string) ([]byte, string, error) {
	loc := dataURLRegex.FindStringSubmatchIndex(s)
	if loc == nil {
		return nil, "", fmt.Errorf("not a base64 image data URL")
	}
	contentType := "image/" + s[loc[2]:loc[3]]
	payload := strings.TrimSpace(s[loc[1]:])

	content, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode image data: %w", err)
	}
	if len(content) == 0 {
		return nil, "", fmt.Errorf("image data is empty")
	}
	return content, contentType, nil
}
