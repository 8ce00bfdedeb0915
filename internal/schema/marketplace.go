package schema

import "github.com/JonMunkholm/classifieds/internal/restore/tables"

var (
	productConditions = []string{"new", "like_new", "good", "fair", "poor"}
	productStatuses   = []string{"active", "reserved", "sold", "archived"}
	reportStatuses    = []string{"open", "reviewing", "resolved", "dismissed"}
	profileRoles      = []string{"user", "moderator", "admin"}
)

// Marketplace returns the column layout of every marketplace table, parents
// before children.
func Marketplace() []TableSpec {
	return []TableSpec{
		{
			Name: tables.Categories,
			Fields: []FieldSpec{
				{Name: "name", Type: FieldText, Required: true},
				{Name: "slug", Type: FieldText},
				{Name: "icon", Type: FieldText},
				{Name: "parent_id", Type: FieldText, References: tables.Categories},
				{Name: "sort_order", Type: FieldInteger},
				{Name: "created_at", Type: FieldDate},
			},
		},
		{
			Name: tables.Profiles,
			Fields: []FieldSpec{
				{Name: "email", Type: FieldText},
				{Name: "display_name", Type: FieldText},
				{Name: "avatar_url", Type: FieldText},
				{Name: "phone", Type: FieldText},
				{Name: "location", Type: FieldText},
				{Name: "role", Type: FieldEnum, EnumValues: profileRoles},
				{Name: "is_banned", Type: FieldBool},
				{Name: "created_at", Type: FieldDate},
			},
		},
		{
			Name:      tables.Products,
			Generated: true,
			Fields: []FieldSpec{
				{Name: "title", Type: FieldText, Required: true},
				{Name: "description", Type: FieldText},
				{Name: "price", Type: FieldNumeric},
				{Name: "currency", Type: FieldText},
				{Name: "condition", Type: FieldEnum, EnumValues: productConditions},
				{Name: "status", Type: FieldEnum, EnumValues: productStatuses},
				{Name: "category_id", Type: FieldText, References: tables.Categories},
				{Name: "seller_id", Type: FieldText, References: tables.Profiles},
				{Name: "location", Type: FieldText},
				{Name: "attributes", Type: FieldJSON},
				{Name: "view_count", Type: FieldInteger},
				{Name: "created_at", Type: FieldDate},
				{Name: "updated_at", Type: FieldDate},
			},
		},
		{
			Name:      tables.ProductImages,
			Generated: true,
			Fields: []FieldSpec{
				{Name: "product_id", Type: FieldInteger, References: tables.Products},
				{Name: "url", Type: FieldText, Required: true},
				{Name: "position", Type: FieldInteger},
			},
		},
		{
			Name:      tables.Favorites,
			Generated: true,
			Fields: []FieldSpec{
				{Name: "user_id", Type: FieldText, References: tables.Profiles},
				{Name: "product_id", Type: FieldInteger, References: tables.Products},
				{Name: "created_at", Type: FieldDate},
			},
		},
		{
			Name:      tables.Conversations,
			Generated: true,
			Fields: []FieldSpec{
				{Name: "product_id", Type: FieldInteger, References: tables.Products},
				{Name: "buyer_id", Type: FieldText, References: tables.Profiles},
				{Name: "seller_id", Type: FieldText, References: tables.Profiles},
				{Name: "last_message_at", Type: FieldDate},
				{Name: "created_at", Type: FieldDate},
			},
		},
		{
			Name:      tables.Messages,
			Generated: true,
			Fields: []FieldSpec{
				{Name: "conversation_id", Type: FieldInteger, References: tables.Conversations},
				{Name: "sender_id", Type: FieldText, References: tables.Profiles},
				{Name: "body", Type: FieldText, Required: true},
				{Name: "read_at", Type: FieldDate},
				{Name: "created_at", Type: FieldDate},
			},
		},
		{
			Name:      tables.Ratings,
			Generated: true,
			Fields: []FieldSpec{
				{Name: "rater_id", Type: FieldText, References: tables.Profiles},
				{Name: "rated_user_id", Type: FieldText, References: tables.Profiles},
				{Name: "product_id", Type: FieldInteger, References: tables.Products},
				{Name: "score", Type: FieldInteger, Required: true},
				{Name: "comment", Type: FieldText},
				{Name: "created_at", Type: FieldDate},
			},
		},
		{
			Name:      tables.Reports,
			Generated: true,
			Fields: []FieldSpec{
				{Name: "reporter_id", Type: FieldText, References: tables.Profiles},
				{Name: "product_id", Type: FieldInteger, References: tables.Products},
				{Name: "reason", Type: FieldText, Required: true},
				{Name: "status", Type: FieldEnum, EnumValues: reportStatuses},
				{Name: "created_at", Type: FieldDate},
			},
		},
		{
			Name:      tables.Notifications,
			Generated: true,
			Fields: []FieldSpec{
				{Name: "user_id", Type: FieldText, References: tables.Profiles},
				{Name: "kind", Type: FieldText},
				{Name: "payload", Type: FieldJSON},
				{Name: "is_read", Type: FieldBool},
				{Name: "created_at", Type: FieldDate},
			},
		},
		{
			Name:      tables.AuditLogs,
			Generated: true,
			Fields: []FieldSpec{
				{Name: "actor_id", Type: FieldText, References: tables.Profiles},
				{Name: "action", Type: FieldText, Required: true},
				{Name: "target", Type: FieldText},
				{Name: "details", Type: FieldJSON},
				{Name: "created_at", Type: FieldDate},
			},
		},
		{
			Name:    tables.SiteSettings,
			IDField: "key",
			Fields: []FieldSpec{
				{Name: "value", Type: FieldJSON},
				{Name: "updated_at", Type: FieldDate},
			},
		},
	}
}
