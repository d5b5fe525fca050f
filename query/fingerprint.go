package query

import (
	"strconv"
	"strings"
)

// Fingerprint identifies the result set of q. Queries with equal
// fingerprints share one cached result set; the listener is not part of it.
func Fingerprint(q *Query) string {
	var sb strings.Builder
	sb.WriteString(q.EntityType)
	sb.WriteString("|")
	sb.WriteString(q.Criteria.String())
	sb.WriteString("|")
	for i, o := range q.Order {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(o.Attribute)
		if o.Ascending {
			sb.WriteString(" asc")
		} else {
			sb.WriteString(" desc")
		}
	}
	sb.WriteString("|")
	sb.WriteString(q.Partition.String())
	if q.Partition == PartitionValue {
		sb.WriteByte('=')
		sb.WriteString(q.PartitionValue.Key())
	}
	sb.WriteString("|")
	sb.WriteString(strconv.Itoa(q.First))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(q.Max))
	return sb.String()
}
