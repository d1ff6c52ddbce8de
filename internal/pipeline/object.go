package pipeline

// Object is the parsed attribute header of one file. The pipeline touches the
// underlying DICOM toolkit only through this interface; tests substitute
// fakes.
type Object interface {
	GetAttr(name string) string
	SetAttr(name, value string) error
	ClearAttr(name string)
	Attributes() map[string]any
	IsImage() bool
	IsSR() bool
	IsSecondaryCapture() bool
	IsReformatted() bool
	SaveTo(path string) error
}

// Reader parses a file into an Object.
type Reader interface {
	Read(path string) (Object, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(path string) (Object, error)

// Read implements Reader.
func (f ReaderFunc) Read(path string) (Object, error) { return f(path) }

// Attribute names handled by the anonymization step. Names follow the DICOM
// keyword registry.
const (
	attrPatientName             = "PatientName"
	attrPatientID               = "PatientID"
	attrPatientBirthDate        = "PatientBirthDate"
	attrStudyInstanceUID        = "StudyInstanceUID"
	attrSeriesInstanceUID       = "SeriesInstanceUID"
	attrSOPInstanceUID          = "SOPInstanceUID"
	attrMediaStorageSOPInstance = "MediaStorageSOPInstanceUID"
	attrStudyDate               = "StudyDate"
	attrAccessionNumber         = "AccessionNumber"
	attrModality                = "Modality"
	attrSeriesNumber            = "SeriesNumber"
	attrInstanceNumber          = "InstanceNumber"
)

// shiftedDateAttrs are date attributes moved by the patient's fixed offset so
// that every study of one patient shifts consistently.
var shiftedDateAttrs = []string{
	attrPatientBirthDate,
	"SeriesDate",
	"AcquisitionDate",
	"ContentDate",
	"InstanceCreationDate",
}

// clearedAttrs are identifying attributes blanked outright.
var clearedAttrs = []string{
	"PatientAge",
	"PatientAddress",
	"PatientTelephoneNumbers",
	"OtherPatientIDs",
	"PatientBirthTime",
	"PatientMotherBirthName",
	"MilitaryRank",
	"EthnicGroup",
	"PatientReligiousPreference",
	"PatientComments",

	"StudyTime",
	"SeriesTime",
	"AcquisitionTime",
	"ContentTime",
	"InstanceCreationTime",

	"InstitutionAddress",
	"InstitutionalDepartmentName",
	"StationName",

	"ReferringPhysicianName",
	"ReferringPhysicianAddress",
	"ReferringPhysicianTelephoneNumbers",
	"PerformingPhysicianName",
	"OperatorsName",
	"PhysiciansOfRecord",
	"NameOfPhysiciansReadingStudy",
	"RequestingPhysician",

	"PerformedProcedureStepID",
	"ScheduledProcedureStepID",
	"StudyID",
}
