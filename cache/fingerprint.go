package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/utils"
)

// absentField marks optional fields that were not provided, so an empty and
// a missing value serialize differently from any real payload.
const absentField = "\x00absent"

// Fingerprint derives the deterministic cache key for one render request.
// Identical params always produce the identical key across calls and process
// restarts; map fields are serialized in sorted key order so iteration order
// never leaks into the digest.
func Fingerprint(params types.CacheKeyParams) (string, error) {
	var b strings.Builder

	writeField(&b, "source", params.Source, true)
	writeField(&b, "path", params.FilePath, params.FilePath != "")
	writeField(&b, "theme", params.Theme, params.Theme != "")

	if err := writeMap(&b, "options", params.Options); err != nil {
		return "", types.WrapError(types.ErrInvalidKeyParams, "options not serializable")
	}
	if err := writeMap(&b, "metadata", params.Metadata); err != nil {
		return "", types.WrapError(types.ErrInvalidKeyParams, "metadata not serializable")
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

func writeField(b *strings.Builder, name, value string, present bool) {
	if !present {
		value = absentField
	}
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
}

func writeMap(b *strings.Builder, name string, m map[string]interface{}) error {
	if m == nil {
		writeField(b, name, "", false)
		return nil
	}

	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		encoded, err := utils.Marshal(m[key])
		if err != nil {
			return err
		}
		writeField(b, name+"."+key, string(encoded), true)
	}
	return nil
}
