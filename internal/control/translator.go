package control

import (
	"encoding/xml"
	"fmt"
	"os"
	"sync/atomic"
)

// translatorFile is the on-disk shape of the user-editable address
// translator (§6: "a sequence of <osc><from/><to/></osc> blocks"). This is
// the one piece of persisted configuration the core itself parses — the
// spec's Non-goal excludes session/playlist XML, not this narrow,
// in-scope extensibility point (§4.7: "the sole extensibility point").
// Stdlib encoding/xml is used; no XML library appears anywhere in the
// example pack and the format is a handful of flat elements.
type translatorFile struct {
	XMLName xml.Name `xml:"translator"`
	Entries []struct {
		From string `xml:"from"`
		To   string `xml:"to"`
	} `xml:"osc"`
}

// Translator maps inbound addresses verbatim before parsing (§4.7). The
// table is replaced atomically by pointer swap (§5 shared-resource
// policy), never mutated in place.
type Translator struct {
	table atomic.Pointer[map[string]string]
}

// NewTranslator returns an empty translator.
func NewTranslator() *Translator {
	t := &Translator{}
	empty := map[string]string{}
	t.table.Store(&empty)
	return t
}

// Translate returns the mapped address, or addr unchanged if the table has
// no entry for it. Idempotent per §8 property 7 when the table is acyclic.
func (t *Translator) Translate(addr string) string {
	table := t.table.Load()
	if table == nil {
		return addr
	}
	if mapped, ok := (*table)[addr]; ok {
		return mapped
	}
	return addr
}

// Reload atomically rebuilds the table from the translator file at path.
func (t *Translator) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("control: read translator file: %w", err)
	}

	var doc translatorFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("control: parse translator file: %w", err)
	}

	table := make(map[string]string, len(doc.Entries))
	for _, e := range doc.Entries {
		table[e.From] = e.To
	}
	t.table.Store(&table)
	return nil
}
