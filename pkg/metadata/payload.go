// Package metadata turns a dataset retrieved from the source installation into
// the payloads sent to the target: the creation payload, which carries the
// citation block under a CC0 license, and the provenance patch applied once the
// target dataset exists.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alexjakubow/multi-dataverse/pkg/dataverse"
)

const (
	LicenseName = "CC0 1.0"
	LicenseURI  = "http://creativecommons.org/publicdomain/zero/1.0"
)

const (
	doiScheme   = "doi:"
	doiResolver = "https://doi.org/"
)

type License struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type CreatePayload struct {
	DatasetVersion VersionPayload `json:"datasetVersion"`
}

type VersionPayload struct {
	License        License                    `json:"license"`
	MetadataBlocks map[string]json.RawMessage `json:"metadataBlocks"`
}

// MalformedSourceMetadataError is returned when the source dataset has no
// citation metadata block to copy.
type MalformedSourceMetadataError struct {
	Reason string
}

func (e *MalformedSourceMetadataError) Error() string {
	return fmt.Sprintf("malformed source metadata: %s", e.Reason)
}

// BuildCreatePayload copies the citation block of the source dataset's latest
// version unchanged and sets the license to CC0.
func BuildCreatePayload(ds *dataverse.Dataset) (*CreatePayload, error) {
	if ds == nil {
		return nil, &MalformedSourceMetadataError{Reason: "no dataset"}
	}

	citation, ok := ds.LatestVersion.MetadataBlocks["citation"]
	if !ok || len(citation) == 0 || bytes.Equal(bytes.TrimSpace(citation), []byte("null")) {
		return nil, &MalformedSourceMetadataError{Reason: "latestVersion.metadataBlocks.citation is missing"}
	}

	return &CreatePayload{
		DatasetVersion: VersionPayload{
			License: License{Name: LicenseName, URI: LicenseURI},
			MetadataBlocks: map[string]json.RawMessage{
				"citation": citation,
			},
		},
	}, nil
}

// Provenance holds the labels written into the provenance patch.
type Provenance struct {
	Agency    string
	Depositor string
}

type MetadataPatch struct {
	Fields []Field `json:"fields"`
}

type Field struct {
	TypeName  string      `json:"typeName"`
	TypeClass string      `json:"typeClass,omitempty"`
	Multiple  *bool       `json:"multiple,omitempty"`
	Value     interface{} `json:"value"`
}

// Field returns the patch field with the given type name.
func (p *MetadataPatch) Field(typeName string) (Field, bool) {
	for _, f := range p.Fields {
		if f.TypeName == typeName {
			return f, true
		}
	}

	return Field{}, false
}

// DOIURL strips a doi: scheme, in any case, from pid and renders it as a doi.org URL.
func DOIURL(pid string) string {
	pid = strings.TrimSpace(pid)
	if len(pid) >= len(doiScheme) && strings.EqualFold(pid[:len(doiScheme)], doiScheme) {
		pid = pid[len(doiScheme):]
	}

	return doiResolver + pid
}

// BuildProvenancePatch links the target dataset back to its source: the source
// DOI as an other identifier under the agency label, the depositor and the
// deposit date.
func (p Provenance) BuildProvenancePatch(sourcePID string, today time.Time) *MetadataPatch {
	single := false
	primitive := func(typeName, value string) Field {
		return Field{TypeName: typeName, TypeClass: "primitive", Multiple: &single, Value: value}
	}

	return &MetadataPatch{
		Fields: []Field{
			{
				TypeName:  "otherId",
				TypeClass: "compound",
				Multiple:  &single,
				Value: []map[string]Field{
					{
						"otherIdAgency": primitive("otherIdAgency", p.Agency),
						"otherIdValue":  primitive("otherIdValue", DOIURL(sourcePID)),
					},
				},
			},
			{TypeName: "depositor", Value: p.Depositor},
			{TypeName: "dateOfDeposit", Value: today.Format(time.DateOnly)},
		},
	}
}
