package procurement

// EntityKind is a node label in the procurement graph.
type EntityKind string

const (
	KindBuyer       EntityKind = "Buyer"
	KindProcurement EntityKind = "Procurement"
	KindItem        EntityKind = "Item"
	KindAward       EntityKind = "Award"
	KindContract    EntityKind = "Contract"
	KindSupplier    EntityKind = "Supplier"
)

// EntityKinds lists every node kind in load order.
var EntityKinds = []EntityKind{KindBuyer, KindProcurement, KindItem, KindAward, KindContract, KindSupplier}

// KeyField is the attribute holding the unique key of the kind.
func (k EntityKind) KeyField() string {
	if k == KindProcurement {
		return "ocid"
	}
	return "id"
}

func (k EntityKind) Valid() bool {
	for _, v := range EntityKinds {
		if v == k {
			return true
		}
	}
	return false
}

// RelKind is a relationship type in the procurement graph.
type RelKind string

const (
	RelPublished           RelKind = "PUBLISHED"
	RelIncludes            RelKind = "INCLUDES"
	RelHasAward            RelKind = "HAS_AWARD"
	RelAwardedTo           RelKind = "AWARDED_TO"
	RelHasContract         RelKind = "HAS_CONTRACT"
	RelRelatedTime         RelKind = "RELATED_TIME"
	RelRegionalCooperation RelKind = "REGIONAL_COOPERATION"
)

var RelKinds = []RelKind{
	RelPublished, RelIncludes, RelHasAward, RelAwardedTo, RelHasContract,
	RelRelatedTime, RelRegionalCooperation,
}

// Endpoints returns the node kinds a relationship connects.
func (r RelKind) Endpoints() (from, to EntityKind, ok bool) {
	switch r {
	case RelPublished:
		return KindBuyer, KindProcurement, true
	case RelIncludes:
		return KindProcurement, KindItem, true
	case RelHasAward:
		return KindProcurement, KindAward, true
	case RelAwardedTo:
		return KindAward, KindSupplier, true
	case RelHasContract:
		return KindAward, KindContract, true
	case RelRelatedTime:
		return KindProcurement, KindProcurement, true
	case RelRegionalCooperation:
		return KindSupplier, KindSupplier, true
	default:
		return "", "", false
	}
}

// RiskLevel grades a risk finding.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
	RiskNormal RiskLevel = "NORMAL"
)

// AwardSpeed buckets the days between tender publication and award.
type AwardSpeed string

const (
	SpeedSameDay        AwardSpeed = "SAME_DAY"
	SpeedOneDay         AwardSpeed = "ONE_DAY"
	SpeedTwoToThreeDays AwardSpeed = "TWO_TO_THREE_DAYS"
)

// Attribute names shared by the loader, risk passes and verifier.
const (
	AttrTitle             = "title"
	AttrDescription       = "description"
	AttrPublishedDate     = "publishedDate"
	AttrProcurementMethod = "procurementMethod"
	AttrMainCategory      = "mainCategory"
	AttrValue             = "value"
	AttrCurrency          = "currency"
	AttrDate              = "date"
	AttrRegion            = "region"
	AttrAwardID           = "awardID"
	AttrRiskLevel         = "riskLevel"
)
