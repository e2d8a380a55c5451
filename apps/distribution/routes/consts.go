package routes

type Tag string

const (
	TagHealth  Tag = "health"
	TagRuns    Tag = "runs"
	TagObjects Tag = "objects"
)

func (t Tag) String() string { return string(t) }

func AllTags() []string {
	return []string{
		TagHealth.String(),
		TagRuns.String(),
		TagObjects.String(),
	}
}
