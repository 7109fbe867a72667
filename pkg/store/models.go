package store

import "time"

// federated is implemented by every model that carries a federation identity.
type federated interface {
	setFederation(fedID, componentID int64)
	localID() int64
}

// Component is a peer instance of the federation.
type Component struct {
	ID                int64      `gorm:"primaryKey;column:id"`
	UUID              string     `gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	Name              *string    `gorm:"column:name"`
	Address           *string    `gorm:"column:address"`
	Description       string     `gorm:"column:description"`
	LastSyncTimestamp *time.Time `gorm:"column:last_sync_timestamp"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (Component) TableName() string { return "components" }

// UserType distinguishes local accounts from federation placeholders.
type UserType string

const (
	UserTypePerson         UserType = "person"
	UserTypeFederationUser UserType = "federation_user"
	UserTypeOther          UserType = "other"
)

// User is a local or imported user account.
type User struct {
	ID          int64         `gorm:"primaryKey;column:id"`
	Name        *string       `gorm:"column:name"`
	Email       *string       `gorm:"column:email"`
	ORCID       *string       `gorm:"column:orcid"`
	Affiliation *string       `gorm:"column:affiliation"`
	Role        *string       `gorm:"column:role"`
	ExtraFields JSONStringMap `gorm:"column:extra_fields;type:text"`
	Type        UserType      `gorm:"column:type;not null"`
	FedID       *int64        `gorm:"column:fed_id;uniqueIndex:idx_users_fed,priority:1"`
	ComponentID *int64        `gorm:"column:component_id;uniqueIndex:idx_users_fed,priority:2"`
	CreatedAt   time.Time     `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (User) TableName() string { return "users" }

func (u *User) setFederation(fedID, componentID int64) {
	u.FedID, u.ComponentID = &fedID, &componentID
	u.Type = UserTypeFederationUser
}
func (u *User) localID() int64 { return u.ID }

// ActionType groups actions (e.g. "Sample Creation", "Measurement").
type ActionType struct {
	ID                   int64        `gorm:"primaryKey;column:id"`
	AdminOnly            bool         `gorm:"column:admin_only"`
	ShowOnFrontpage      bool         `gorm:"column:show_on_frontpage"`
	ShowInNavbar         bool         `gorm:"column:show_in_navbar"`
	EnableLabels         bool         `gorm:"column:enable_labels"`
	EnableFiles          bool         `gorm:"column:enable_files"`
	EnableLocations      bool         `gorm:"column:enable_locations"`
	EnablePublications   bool         `gorm:"column:enable_publications"`
	EnableComments       bool         `gorm:"column:enable_comments"`
	EnableActivityLog    bool         `gorm:"column:enable_activity_log"`
	EnableRelatedObjects bool         `gorm:"column:enable_related_objects"`
	EnableProjectLink    bool         `gorm:"column:enable_project_link"`
	DisableCreateObjects bool         `gorm:"column:disable_create_objects"`
	IsTemplate           bool         `gorm:"column:is_template"`
	Translations         Translations `gorm:"column:translations;type:text"`
	FedID                *int64       `gorm:"column:fed_id;uniqueIndex:idx_action_types_fed,priority:1"`
	ComponentID          *int64       `gorm:"column:component_id;uniqueIndex:idx_action_types_fed,priority:2"`
}

// TableName returns the GORM table name.
func (ActionType) TableName() string { return "action_types" }

func (a *ActionType) setFederation(fedID, componentID int64) {
	a.FedID, a.ComponentID = &fedID, &componentID
}
func (a *ActionType) localID() int64 { return a.ID }

// Instrument is a device that actions can be performed with.
type Instrument struct {
	ID                         int64        `gorm:"primaryKey;column:id"`
	DescriptionIsMarkdown      bool         `gorm:"column:description_is_markdown"`
	ShortDescriptionIsMarkdown bool         `gorm:"column:short_description_is_markdown"`
	NotesIsMarkdown            bool         `gorm:"column:notes_is_markdown"`
	IsHidden                   bool         `gorm:"column:is_hidden"`
	Translations               Translations `gorm:"column:translations;type:text"`
	FedID                      *int64       `gorm:"column:fed_id;uniqueIndex:idx_instruments_fed,priority:1"`
	ComponentID                *int64       `gorm:"column:component_id;uniqueIndex:idx_instruments_fed,priority:2"`
}

// TableName returns the GORM table name.
func (Instrument) TableName() string { return "instruments" }

func (i *Instrument) setFederation(fedID, componentID int64) {
	i.FedID, i.ComponentID = &fedID, &componentID
}
func (i *Instrument) localID() int64 { return i.ID }

// Action describes how objects are created, including their schema.
type Action struct {
	ID                         int64        `gorm:"primaryKey;column:id"`
	ActionTypeID               *int64       `gorm:"column:action_type_id;index"`
	InstrumentID               *int64       `gorm:"column:instrument_id;index"`
	UserID                     *int64       `gorm:"column:user_id"`
	Schema                     JSONAny      `gorm:"column:schema;type:text"`
	DescriptionIsMarkdown      bool         `gorm:"column:description_is_markdown"`
	ShortDescriptionIsMarkdown bool         `gorm:"column:short_description_is_markdown"`
	IsHidden                   bool         `gorm:"column:is_hidden"`
	Translations               Translations `gorm:"column:translations;type:text"`
	FedID                      *int64       `gorm:"column:fed_id;uniqueIndex:idx_actions_fed,priority:1"`
	ComponentID                *int64       `gorm:"column:component_id;uniqueIndex:idx_actions_fed,priority:2"`
}

// TableName returns the GORM table name.
func (Action) TableName() string { return "actions" }

func (a *Action) setFederation(fedID, componentID int64) {
	a.FedID, a.ComponentID = &fedID, &componentID
}
func (a *Action) localID() int64 { return a.ID }

// LocationType configures which features locations of that type support.
type LocationType struct {
	ID                      int64         `gorm:"primaryKey;column:id"`
	Name                    JSONStringMap `gorm:"column:name;type:text"`
	LocationNameSingular    JSONStringMap `gorm:"column:location_name_singular;type:text"`
	LocationNamePlural      JSONStringMap `gorm:"column:location_name_plural;type:text"`
	AdminOnly               bool          `gorm:"column:admin_only"`
	EnableParentLocation    bool          `gorm:"column:enable_parent_location"`
	EnableSubLocations      bool          `gorm:"column:enable_sub_locations"`
	EnableObjectAssignments bool          `gorm:"column:enable_object_assignments"`
	EnableResponsibleUsers  bool          `gorm:"column:enable_responsible_users"`
	ShowLocationLog         bool          `gorm:"column:show_location_log"`
	FedID                   *int64        `gorm:"column:fed_id;uniqueIndex:idx_location_types_fed,priority:1"`
	ComponentID             *int64        `gorm:"column:component_id;uniqueIndex:idx_location_types_fed,priority:2"`
}

// TableName returns the GORM table name.
func (LocationType) TableName() string { return "location_types" }

func (l *LocationType) setFederation(fedID, componentID int64) {
	l.FedID, l.ComponentID = &fedID, &componentID
}
func (l *LocationType) localID() int64 { return l.ID }

// Location is a node in the location tree.
type Location struct {
	ID               int64         `gorm:"primaryKey;column:id"`
	Name             JSONStringMap `gorm:"column:name;type:text"`
	Description      JSONStringMap `gorm:"column:description;type:text"`
	ParentLocationID *int64        `gorm:"column:parent_location_id;index"`
	TypeID           *int64        `gorm:"column:type_id"`
	IsHidden         bool          `gorm:"column:is_hidden"`
	FedID            *int64        `gorm:"column:fed_id;uniqueIndex:idx_locations_fed,priority:1"`
	ComponentID      *int64        `gorm:"column:component_id;uniqueIndex:idx_locations_fed,priority:2"`
}

// TableName returns the GORM table name.
func (Location) TableName() string { return "locations" }

func (l *Location) setFederation(fedID, componentID int64) {
	l.FedID, l.ComponentID = &fedID, &componentID
}
func (l *Location) localID() int64 { return l.ID }

// LocationResponsibleUser links a location to one of its responsible users.
type LocationResponsibleUser struct {
	LocationID int64 `gorm:"primaryKey;column:location_id"`
	UserID     int64 `gorm:"primaryKey;column:user_id"`
}

// TableName returns the GORM table name.
func (LocationResponsibleUser) TableName() string { return "location_responsible_users" }

// Object is a sample, measurement or other object. Its content lives in
// ObjectVersion rows; CurrentVersionID always names the highest version_id.
type Object struct {
	ID               int64     `gorm:"primaryKey;column:id"`
	ActionID         *int64    `gorm:"column:action_id;index"`
	CurrentVersionID *int64    `gorm:"column:current_version_id"`
	FedID            *int64    `gorm:"column:fed_id;uniqueIndex:idx_objects_fed,priority:1"`
	ComponentID      *int64    `gorm:"column:component_id;uniqueIndex:idx_objects_fed,priority:2"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (Object) TableName() string { return "objects" }

func (o *Object) setFederation(fedID, componentID int64) {
	o.FedID, o.ComponentID = &fedID, &componentID
}
func (o *Object) localID() int64 { return o.ID }

// ObjectVersion is one entry of an object's version chain.
type ObjectVersion struct {
	ID            int64      `gorm:"primaryKey;column:id"`
	ObjectID      int64      `gorm:"column:object_id;uniqueIndex:idx_object_versions_key,priority:1;not null"`
	VersionID     int64      `gorm:"column:version_id;uniqueIndex:idx_object_versions_key,priority:2;not null"`
	Data          JSONAny    `gorm:"column:data;type:text"`
	Schema        JSONAny    `gorm:"column:schema;type:text"`
	UserID        *int64     `gorm:"column:user_id"`
	UTCDatetime   *time.Time `gorm:"column:utc_datetime"`
	ContentDigest string     `gorm:"column:content_digest"`
}

// TableName returns the GORM table name.
func (ObjectVersion) TableName() string { return "object_versions" }

// Tag counts how many objects currently use a tag.
type Tag struct {
	Name string `gorm:"primaryKey;column:name"`
	Uses int64  `gorm:"column:uses;not null"`
}

// TableName returns the GORM table name.
func (Tag) TableName() string { return "tags" }

// Comment is a comment on an object.
type Comment struct {
	ID          int64     `gorm:"primaryKey;column:id"`
	ObjectID    int64     `gorm:"column:object_id;index;not null"`
	UserID      *int64    `gorm:"column:user_id"`
	Content     string    `gorm:"column:content"`
	UTCDatetime time.Time `gorm:"column:utc_datetime"`
	FedID       *int64    `gorm:"column:fed_id;uniqueIndex:idx_comments_fed,priority:1"`
	ComponentID *int64    `gorm:"column:component_id;uniqueIndex:idx_comments_fed,priority:2"`
}

// TableName returns the GORM table name.
func (Comment) TableName() string { return "comments" }

func (c *Comment) setFederation(fedID, componentID int64) {
	c.FedID, c.ComponentID = &fedID, &componentID
}
func (c *Comment) localID() int64 { return c.ID }

// File is a file attached to an object. Data describes where the content lives.
type File struct {
	ID          int64     `gorm:"primaryKey;column:id"`
	ObjectID    int64     `gorm:"column:object_id;index;not null"`
	UserID      *int64    `gorm:"column:user_id"`
	Data        JSONAny   `gorm:"column:data;type:text"`
	UTCDatetime time.Time `gorm:"column:utc_datetime"`
	Hidden      bool      `gorm:"column:hidden"`
	HideReason  *string   `gorm:"column:hide_reason"`
	FedID       *int64    `gorm:"column:fed_id;uniqueIndex:idx_files_fed,priority:1"`
	ComponentID *int64    `gorm:"column:component_id;uniqueIndex:idx_files_fed,priority:2"`
}

// TableName returns the GORM table name.
func (File) TableName() string { return "files" }

func (f *File) setFederation(fedID, componentID int64) {
	f.FedID, f.ComponentID = &fedID, &componentID
}
func (f *File) localID() int64 { return f.ID }

// ObjectLocationAssignment records that an object was stored at a location.
type ObjectLocationAssignment struct {
	ID                int64         `gorm:"primaryKey;column:id"`
	ObjectID          int64         `gorm:"column:object_id;index;not null"`
	LocationID        *int64        `gorm:"column:location_id"`
	ResponsibleUserID *int64        `gorm:"column:responsible_user_id"`
	UserID            *int64        `gorm:"column:user_id"`
	Description       JSONStringMap `gorm:"column:description;type:text"`
	UTCDatetime       time.Time     `gorm:"column:utc_datetime"`
	Confirmed         bool          `gorm:"column:confirmed"`
	Declined          bool          `gorm:"column:declined"`
	FedID             *int64        `gorm:"column:fed_id;uniqueIndex:idx_olas_fed,priority:1"`
	ComponentID       *int64        `gorm:"column:component_id;uniqueIndex:idx_olas_fed,priority:2"`
}

// TableName returns the GORM table name.
func (ObjectLocationAssignment) TableName() string { return "object_location_assignments" }

func (a *ObjectLocationAssignment) setFederation(fedID, componentID int64) {
	a.FedID, a.ComponentID = &fedID, &componentID
}
func (a *ObjectLocationAssignment) localID() int64 { return a.ID }

// MarkdownImage is an image referenced from markdown content. Images that are
// not permanent are removed by housekeeping outside this package.
type MarkdownImage struct {
	FileName    string    `gorm:"primaryKey;column:file_name"`
	Content     []byte    `gorm:"column:content"`
	UserID      *int64    `gorm:"column:user_id"`
	UTCDatetime time.Time `gorm:"column:utc_datetime"`
	Permanent   bool      `gorm:"column:permanent"`
}

// TableName returns the GORM table name.
func (MarkdownImage) TableName() string { return "markdown_images" }

// ObjectShare records that an object is shared with a component under a policy.
type ObjectShare struct {
	ObjectID    int64     `gorm:"primaryKey;column:object_id"`
	ComponentID int64     `gorm:"primaryKey;column:component_id"`
	Policy      JSONAny   `gorm:"column:policy;type:text;not null"`
	UTCDatetime time.Time `gorm:"column:utc_datetime"`
	UserID      *int64    `gorm:"column:user_id"`
}

// TableName returns the GORM table name.
func (ObjectShare) TableName() string { return "object_shares" }

// Group is a basic user group, used as a permission target.
type Group struct {
	ID   int64  `gorm:"primaryKey;column:id"`
	Name string `gorm:"column:name;not null"`
}

// TableName returns the GORM table name.
func (Group) TableName() string { return "groups" }

// Project is a project group. PermissionCeiling, when set, caps the permission
// level that federation policies may grant to the project.
type Project struct {
	ID                int64   `gorm:"primaryKey;column:id"`
	Name              string  `gorm:"column:name;not null"`
	PermissionCeiling *string `gorm:"column:permission_ceiling"`
}

// TableName returns the GORM table name.
func (Project) TableName() string { return "projects" }
