// Package dicom wraps github.com/suyashkumar/dicom with the narrow attribute
// access the anonymization pipeline needs: get-attribute, set-attribute,
// classification, and save-to-path. Pixel data is carried through opaquely.
package dicom

import (
	"fmt"
	"os"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Dataset wraps a parsed DICOM dataset.
type Dataset struct {
	Data     dicom.Dataset
	FilePath string
}

// Read parses a DICOM file, pixel data included, so the dataset can be
// rewritten after attribute substitution.
func Read(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	ds, err := dicom.Parse(file, info.Size(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	return &Dataset{Data: ds, FilePath: path}, nil
}

// ReadHeader parses only the attribute header, skipping pixel data. Used for
// cheap classification.
func ReadHeader(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	ds, err := dicom.Parse(file, info.Size(), nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	return &Dataset{Data: ds, FilePath: path}, nil
}

// GetAttr returns the first string value of the named attribute, or "" when
// the attribute is absent or not a string.
func (d *Dataset) GetAttr(name string) string {
	info, err := tag.FindByName(name)
	if err != nil {
		return ""
	}
	return d.getString(info.Tag)
}

func (d *Dataset) getString(t tag.Tag) string {
	vals := d.getStrings(t)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (d *Dataset) getStrings(t tag.Tag) []string {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		return v
	case string:
		return []string{v}
	}
	return nil
}

func (d *Dataset) has(t tag.Tag) bool {
	_, err := d.Data.FindElementByTag(t)
	return err == nil
}

// Attributes exports the string-valued attributes as a map for the filter
// script. Multi-valued attributes are joined with the DICOM backslash
// separator.
func (d *Dataset) Attributes() map[string]any {
	attrs := make(map[string]any)
	for _, elem := range d.Data.Elements {
		if elem == nil || elem.Value == nil || elem.Tag == tag.PixelData {
			continue
		}
		info, err := tag.Find(elem.Tag)
		if err != nil || info.Name == "" {
			continue
		}
		switch v := elem.Value.GetValue().(type) {
		case []string:
			attrs[info.Name] = strings.Join(v, `\`)
		case string:
			attrs[info.Name] = v
		}
	}
	return attrs
}

// sopClassUID returns the dataset SOPClassUID, falling back to the file meta
// group.
func (d *Dataset) sopClassUID() string {
	if uid := d.getString(tag.SOPClassUID); uid != "" {
		return uid
	}
	return d.getString(tag.MediaStorageSOPClassUID)
}

const (
	srClassPrefix = "1.2.840.10008.5.1.4.1.1.88."
	scClassRoot   = "1.2.840.10008.5.1.4.1.1.7"
)

// IsImage reports whether the object carries image geometry.
func (d *Dataset) IsImage() bool {
	return d.has(tag.Rows) && d.has(tag.Columns)
}

// IsSR reports whether the object is a Structured Report.
func (d *Dataset) IsSR() bool {
	if strings.HasPrefix(d.sopClassUID(), srClassPrefix) {
		return true
	}
	return d.getString(tag.Modality) == "SR"
}

// IsSecondaryCapture reports whether the object's SOP class is one of the
// Secondary Capture storage classes.
func (d *Dataset) IsSecondaryCapture() bool {
	uid := d.sopClassUID()
	return uid == scClassRoot || strings.HasPrefix(uid, scClassRoot+".")
}

// IsReformatted reports whether the object is a derived/reformatted image,
// judged from ImageType.
func (d *Dataset) IsReformatted() bool {
	values := d.getStrings(tag.ImageType)
	for _, v := range values {
		if v == "REFORMATTED" {
			return true
		}
	}
	return len(values) > 0 && values[0] == "DERIVED"
}
