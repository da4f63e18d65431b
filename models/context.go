package models

// ContextData is the clinical context of an import: one choice per cascading level.
type ContextData struct {
	Study                *Study                   `json:"study"`
	Center               *Center                  `json:"center"`
	AcquisitionEquipment *AcquisitionEquipment    `json:"acquisitionEquipment"`
	Subject              *SubjectWithSubjectStudy `json:"subject"`
	Examination          *SubjectExamination      `json:"examination"`
	NiftiConverter       *NiftiConverter          `json:"niftiConverter"`
}

// Valid reports whether every level is chosen.
func (c ContextData) Valid() bool {
	return c.Study != nil &&
		c.Center != nil &&
		c.AcquisitionEquipment != nil &&
		c.Subject != nil &&
		c.Examination != nil &&
		c.NiftiConverter != nil
}

// Empty reports whether no level is chosen.
func (c ContextData) Empty() bool {
	return c == ContextData{}
}
