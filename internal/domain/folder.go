package domain

import (
	"sort"
	"time"
)

// FolderKey identifies a testing procedure folder: the smallest selected
// risk assessment id among those sharing an audit area. All attachments and
// data rows of an area are stored against this id.
type FolderKey int64

// AssessmentRef is the minimal view of a selected risk assessment needed to derive folders
type AssessmentRef struct {
	ID        int64
	AuditArea string
}

// Folder is one audit area of an audit's testing procedures
type Folder struct {
	Key               FolderKey `json:"folder_key"`
	AuditArea         string    `json:"audit_area"`
	Band              Band      `json:"band"`
	Rating            int       `json:"rating"`
	AssignedAuditorID *int64    `json:"assigned_auditor_id,omitempty"`
	MemberIDs         []int64   `json:"risk_assessment_ids"`
	AttachedCount     int       `json:"attached_count"`
}

// FolderIndex maps every selected risk assessment to its folder
type FolderIndex struct {
	keys  []FolderKey
	areas map[FolderKey]string
	byID  map[int64]FolderKey
	group map[FolderKey][]int64
}

// FolderKeys groups selected assessments by audit area; each group is keyed by
// its minimum id. Keys are returned in audit-area order, then key order.
func FolderKeys(selected []AssessmentRef) *FolderIndex {
	idx := &FolderIndex{
		areas: make(map[FolderKey]string),
		byID:  make(map[int64]FolderKey),
		group: make(map[FolderKey][]int64),
	}

	minByArea := make(map[string]int64)
	for _, ref := range selected {
		if cur, ok := minByArea[ref.AuditArea]; !ok || ref.ID < cur {
			minByArea[ref.AuditArea] = ref.ID
		}
	}

	for _, ref := range selected {
		key := FolderKey(minByArea[ref.AuditArea])
		idx.byID[ref.ID] = key
		idx.group[key] = append(idx.group[key], ref.ID)
	}

	for area, id := range minByArea {
		key := FolderKey(id)
		idx.areas[key] = area
		idx.keys = append(idx.keys, key)
		sort.Slice(idx.group[key], func(i, j int) bool { return idx.group[key][i] < idx.group[key][j] })
	}
	sort.Slice(idx.keys, func(i, j int) bool {
		ai, aj := idx.areas[idx.keys[i]], idx.areas[idx.keys[j]]
		if ai != aj {
			return ai < aj
		}
		return idx.keys[i] < idx.keys[j]
	})
	return idx
}

// Resolve returns the folder key for any selected risk assessment id
func (f *FolderIndex) Resolve(riskAssessmentID int64) (FolderKey, error) {
	key, ok := f.byID[riskAssessmentID]
	if !ok {
		return 0, NewNotFound("testing procedure folder")
	}
	return key, nil
}

// Keys returns folder keys in display order
func (f *FolderIndex) Keys() []FolderKey {
	out := make([]FolderKey, len(f.keys))
	copy(out, f.keys)
	return out
}

// Area returns the audit area of a folder
func (f *FolderIndex) Area(key FolderKey) string {
	return f.areas[key]
}

// Members returns the risk assessment ids that share a folder, ascending
func (f *FolderIndex) Members(key FolderKey) []int64 {
	return f.group[key]
}

// IsKey reports whether id is itself a folder key
func (f *FolderIndex) IsKey(id int64) bool {
	_, ok := f.areas[FolderKey(id)]
	return ok
}

// Attachment links a working paper template to a folder of an audit
type Attachment struct {
	AuditID          int64     `json:"audit_id"`
	RiskAssessmentID int64     `json:"risk_assessment_id"`
	WorkingPaperID   int64     `json:"working_paper_id"`
	WorkingPaperName string    `json:"working_paper_name"`
	AttachedBy       int64     `json:"attached_by"`
	AttachedAt       time.Time `json:"attached_at"`
}

// FolderView is the fill-in form of one folder
type FolderView struct {
	Folder        Folder                 `json:"folder"`
	WorkingPapers []AttachedWorkingPaper `json:"working_papers"`
}
