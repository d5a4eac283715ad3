package claim

import "strings"

// Denial categories used for work queues.
const (
	DenialContractual      = "contractual"
	DenialPatientResp      = "patient_responsibility"
	DenialCoding           = "coding"
	DenialAuthorization    = "authorization"
	DenialEligibility      = "eligibility"
	DenialTimelyFiling     = "timely_filing"
	DenialDuplicate        = "duplicate"
	DenialMedicalNecessity = "medical_necessity"
	DenialNonCovered       = "non_covered"
	DenialBundling         = "bundling"
	DenialPayerInitiated   = "payer_initiated"
	DenialCorrection       = "correction"
	DenialOther            = "other"
)

var reasonFamilies = map[string]string{
	"1": DenialPatientResp, "2": DenialPatientResp, "3": DenialPatientResp,
	"4": DenialCoding, "5": DenialCoding, "6": DenialCoding, "7": DenialCoding,
	"8": DenialCoding, "9": DenialCoding, "10": DenialCoding, "11": DenialCoding,
	"16": DenialCoding, "125": DenialCoding, "146": DenialCoding, "181": DenialCoding, "182": DenialCoding,
	"15": DenialAuthorization, "197": DenialAuthorization, "198": DenialAuthorization,
	"26": DenialEligibility, "27": DenialEligibility, "31": DenialEligibility,
	"33": DenialEligibility, "177": DenialEligibility, "200": DenialEligibility,
	"29": DenialTimelyFiling,
	"18": DenialDuplicate,
	"50": DenialMedicalNecessity, "55": DenialMedicalNecessity, "56": DenialMedicalNecessity, "57": DenialMedicalNecessity,
	"96": DenialNonCovered, "204": DenialNonCovered,
	"45": DenialContractual, "253": DenialContractual,
	"59": DenialBundling, "97": DenialBundling, "236": DenialBundling, "B15": DenialBundling,
}

var groupCategories = map[string]string{
	"CO": DenialContractual,
	"PR": DenialPatientResp,
	"OA": DenialOther,
	"PI": DenialPayerInitiated,
	"CR": DenialCorrection,
}

// DenialCategory classifies a claim adjustment reason code such as "CO-50",
// "PR 1" or a bare "29". The reason family wins over the group code.
func DenialCategory(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DenialOther
	}
	group, reason := "", code
	if i := strings.IndexAny(code, "- "); i > 0 {
		group, reason = code[:i], strings.TrimSpace(code[i+1:])
	} else if len(code) > 2 && groupCategories[code[:2]] != "" {
		group, reason = code[:2], code[2:]
	}
	if cat, ok := reasonFamilies[strings.TrimLeft(reason, "0")]; ok {
		return cat
	}
	if cat, ok := groupCategories[group]; ok {
		return cat
	}
	return DenialOther
}
