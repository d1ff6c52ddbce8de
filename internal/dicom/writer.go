package dicom

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SetAttr replaces the value of the named attribute. An absent attribute is
// left absent: nothing identifying can survive in an element that does not
// exist.
func (d *Dataset) SetAttr(name, value string) error {
	info, err := tag.FindByName(name)
	if err != nil {
		return fmt.Errorf("unknown attribute %q", name)
	}
	return d.setString(info.Tag, value)
}

// ClearAttr blanks the named attribute if present.
func (d *Dataset) ClearAttr(name string) {
	info, err := tag.FindByName(name)
	if err != nil {
		return
	}
	_ = d.setString(info.Tag, "")
}

func (d *Dataset) setString(t tag.Tag, value string) error {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil {
		return nil
	}

	newValue, err := dicom.NewValue([]string{value})
	if err != nil {
		return fmt.Errorf("could not create value: %w", err)
	}

	newElem := &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    elem.ValueRepresentation,
		RawValueRepresentation: elem.RawValueRepresentation,
		ValueLength:            uint32(len(value)),
		Value:                  newValue,
	}

	for i, e := range d.Data.Elements {
		if e.Tag == t {
			d.Data.Elements[i] = newElem
			return nil
		}
	}
	return nil
}

// SaveTo writes the dataset to path, creating parent directories as needed.
// Verification is relaxed; many real-world files do not strictly follow VR
// specifications.
func (d *Dataset) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer file.Close()

	if err := dicom.Write(file, d.Data,
		dicom.SkipVRVerification(),
		dicom.SkipValueTypeVerification(),
		dicom.DefaultMissingTransferSyntax(),
	); err != nil {
		return fmt.Errorf("could not write DICOM: %w", err)
	}

	return nil
}
