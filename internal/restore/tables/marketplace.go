package tables

import "github.com/JonMunkholm/classifieds/internal/restore"

// Table names of the marketplace schema.
const (
	Categories    restore.TableName = "categories"
	Profiles      restore.TableName = "profiles"
	Products      restore.TableName = "products"
	ProductImages restore.TableName = "product_images"
	Favorites     restore.TableName = "favorites"
	Conversations restore.TableName = "conversations"
	Messages      restore.TableName = "messages"
	Ratings       restore.TableName = "ratings"
	Reports       restore.TableName = "reports"
	Notifications restore.TableName = "notifications"
	AuditLogs     restore.TableName = "audit_logs"
	SiteSettings  restore.TableName = "site_settings"
)

func init() {
	for _, def := range Definitions() {
		restore.Register(def)
	}
}

// Definitions returns the marketplace table definitions in registration order.
//
// Categories, profiles and site settings keep their identities: categories
// are referenced by slug-stable ids, profile ids are the auth user ids, and
// settings are keyed rows. Everything else gets a fresh identity from the
// store so a snapshot can be replayed into another environment.
func Definitions() []restore.TableDefinition {
	return []restore.TableDefinition{
		{
			Name:     Categories,
			Tier:     restore.TierReference,
			IDPolicy: restore.Preserve,
			References: []restore.Reference{
				{Column: "parent_id", Table: Categories},
			},
		},
		{
			Name:     Profiles,
			Tier:     restore.TierOwner,
			IDPolicy: restore.Preserve,
		},
		{
			Name:     Products,
			Tier:     restore.TierEntity,
			IDPolicy: restore.Regenerate,
			References: []restore.Reference{
				{Column: "category_id", Table: Categories},
				{Column: "seller_id", Table: Profiles},
			},
		},
		{
			Name:     ProductImages,
			Tier:     restore.TierDependent,
			IDPolicy: restore.Regenerate,
			References: []restore.Reference{
				{Column: "product_id", Table: Products},
			},
		},
		{
			Name:     Favorites,
			Tier:     restore.TierDependent,
			IDPolicy: restore.Regenerate,
			References: []restore.Reference{
				{Column: "user_id", Table: Profiles},
				{Column: "product_id", Table: Products},
			},
		},
		{
			Name:     Conversations,
			Tier:     restore.TierDependent,
			IDPolicy: restore.Regenerate,
			References: []restore.Reference{
				{Column: "product_id", Table: Products},
				{Column: "buyer_id", Table: Profiles},
				{Column: "seller_id", Table: Profiles},
			},
		},
		{
			Name:     Messages,
			Tier:     restore.TierDependent,
			IDPolicy: restore.Regenerate,
			References: []restore.Reference{
				{Column: "conversation_id", Table: Conversations},
				{Column: "sender_id", Table: Profiles},
			},
		},
		{
			Name:     Ratings,
			Tier:     restore.TierDependent,
			IDPolicy: restore.Regenerate,
			References: []restore.Reference{
				{Column: "rater_id", Table: Profiles},
				{Column: "rated_user_id", Table: Profiles},
				{Column: "product_id", Table: Products},
			},
		},
		{
			Name:     Reports,
			Tier:     restore.TierDependent,
			IDPolicy: restore.Regenerate,
			References: []restore.Reference{
				{Column: "reporter_id", Table: Profiles},
				{Column: "product_id", Table: Products},
			},
		},
		{
			Name:     Notifications,
			Tier:     restore.TierLog,
			IDPolicy: restore.Regenerate,
			References: []restore.Reference{
				{Column: "user_id", Table: Profiles},
			},
		},
		{
			Name:     AuditLogs,
			Tier:     restore.TierLog,
			IDPolicy: restore.Regenerate,
			References: []restore.Reference{
				{Column: "actor_id", Table: Profiles},
			},
		},
		{
			Name:     SiteSettings,
			Tier:     restore.TierSingleton,
			IDPolicy: restore.Preserve,
			IDField:  "key",
		},
	}
}
