package mongo

import (
	"maps"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

// eventFilter translates f into a query document. Limit is applied by the
// caller.
func eventFilter(f domain.EventFilter) bson.D {
	q := bson.D{}
	if f.Kind != "" {
		q = append(q, bson.E{Key: "kind", Value: string(f.Kind)})
	}
	switch {
	case f.ParcelID != "" && f.ParcelIDs != nil:
		q = append(q, bson.E{Key: "parcelId", Value: bson.D{
			{Key: "$eq", Value: f.ParcelID},
			{Key: "$in", Value: f.ParcelIDs},
		}})
	case f.ParcelID != "":
		q = append(q, bson.E{Key: "parcelId", Value: f.ParcelID})
	case f.ParcelIDs != nil:
		q = append(q, bson.E{Key: "parcelId", Value: bson.D{{Key: "$in", Value: f.ParcelIDs}}})
	}
	if f.Band != "" {
		q = append(q, bson.E{Key: "band", Value: string(f.Band)})
	}
	if f.UserID != "" {
		q = append(q, bson.E{Key: "userId", Value: f.UserID})
	}
	if f.Audience != "" {
		q = append(q, bson.E{Key: "audience", Value: string(f.Audience)})
	}
	if !f.Since.IsZero() {
		q = append(q, bson.E{Key: "generatedAt", Value: bson.D{{Key: "$gte", Value: f.Since.UTC()}}})
	}
	return q
}

// patchUpdate renders patch as a single-stage update pipeline. Set fields
// are written as literals; Defaults only fill fields that are missing or
// null, which keeps the merge atomic on the server.
func patchUpdate(parcelID string, patch domain.OutputPatch, now time.Time) mongo.Pipeline {
	set := bson.D{
		{Key: "parcelId", Value: parcelID},
		{Key: "updatedAt", Value: now.UTC()},
		{Key: "createdAt", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$createdAt", now.UTC()}}}},
	}
	for _, f := range slices.Sorted(maps.Keys(patch.Set)) {
		set = append(set, bson.E{Key: string(f), Value: bson.D{{Key: "$literal", Value: bsonValue(patch.Set[f])}}})
	}
	for _, f := range slices.Sorted(maps.Keys(patch.Defaults)) {
		if _, overwritten := patch.Set[f]; overwritten {
			continue
		}
		set = append(set, bson.E{Key: string(f), Value: bson.D{{Key: "$ifNull", Value: bson.A{
			"$" + string(f),
			bson.D{{Key: "$literal", Value: bsonValue(patch.Defaults[f])}},
		}}}})
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func bsonValue(v any) any {
	switch x := v.(type) {
	case domain.Band:
		return string(x)
	case domain.VegetationState:
		return string(x)
	default:
		return v
	}
}
