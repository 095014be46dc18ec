package types

// UserContext describes the requester
type UserContext struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name,omitempty"`
	Email      string                 `json:"email,omitempty"`
	Role       string                 `json:"role"`
	CompanyID  string                 `json:"companyId,omitempty"`
	ProjectIDs []string               `json:"projectIds,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// EntityContext describes the entity being accessed
type EntityContext struct {
	Type            string                 `json:"type"`
	ID              string                 `json:"id,omitempty"`
	ProjectID       string                 `json:"projectId,omitempty"`
	CompanyID       string                 `json:"companyId,omitempty"`
	OwnerID         string                 `json:"ownerId,omitempty"`
	IsClientVisible bool                   `json:"isClientVisible,omitempty"`
	Attributes      map[string]interface{} `json:"attributes,omitempty"`
}

// FileContext carries file attributes for file.* conditions
type FileContext struct {
	Name       string                 `json:"name,omitempty"`
	Extension  string                 `json:"extension,omitempty"`
	MimeType   string                 `json:"mimeType,omitempty"`
	Size       int64                  `json:"size,omitempty"`
	Folder     string                 `json:"folder,omitempty"`
	UploadedBy string                 `json:"uploadedBy,omitempty"`
	Visibility string                 `json:"visibility,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// ProjectContext carries project attributes for project.* conditions
type ProjectContext struct {
	ID         string                 `json:"id,omitempty"`
	Name       string                 `json:"name,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Budget     float64                `json:"budget,omitempty"`
	ManagerID  string                 `json:"managerId,omitempty"`
	MemberIDs  []string               `json:"memberIds,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// InvoiceContext carries invoice attributes for invoice.* conditions
type InvoiceContext struct {
	ID         string                 `json:"id,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Amount     float64                `json:"amount,omitempty"`
	Currency   string                 `json:"currency,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// OpportunityContext carries opportunity attributes for opportunity.* conditions
type OpportunityContext struct {
	ID         string                 `json:"id,omitempty"`
	Stage      string                 `json:"stage,omitempty"`
	Value      float64                `json:"value,omitempty"`
	OwnerID    string                 `json:"ownerId,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// CompanyContext carries company attributes for company.* conditions
type CompanyContext struct {
	ID         string                 `json:"id,omitempty"`
	Name       string                 `json:"name,omitempty"`
	Type       string                 `json:"type,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// EvaluationContext is the request-scoped, read-only input to a decision
type EvaluationContext struct {
	User        UserContext         `json:"user"`
	Entity      EntityContext       `json:"entity"`
	Permission  string              `json:"permission,omitempty"`
	File        *FileContext        `json:"file,omitempty"`
	Project     *ProjectContext     `json:"project,omitempty"`
	Invoice     *InvoiceContext     `json:"invoice,omitempty"`
	Opportunity *OpportunityContext `json:"opportunity,omitempty"`
	Company     *CompanyContext     `json:"company,omitempty"`

	// Extra holds additional top-level namespaces. Typed fields win on conflict.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// ToMap converts the context to a tree of maps addressable by dotted field paths.
// Zero-valued optional strings are omitted so they resolve as missing.
func (c *EvaluationContext) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(c.Extra)+7)
	for k, v := range c.Extra {
		out[k] = v
	}

	user := withAttributes(c.User.Attributes)
	putString(user, "id", c.User.ID)
	putString(user, "name", c.User.Name)
	putString(user, "email", c.User.Email)
	putString(user, "role", c.User.Role)
	putString(user, "companyId", c.User.CompanyID)
	if c.User.ProjectIDs != nil {
		user["projectIds"] = stringsToValues(c.User.ProjectIDs)
	}
	out["user"] = user

	entity := withAttributes(c.Entity.Attributes)
	putString(entity, "type", c.Entity.Type)
	putString(entity, "id", c.Entity.ID)
	putString(entity, "projectId", c.Entity.ProjectID)
	putString(entity, "companyId", c.Entity.CompanyID)
	putString(entity, "ownerId", c.Entity.OwnerID)
	entity["isClientVisible"] = c.Entity.IsClientVisible
	out["entity"] = entity

	if c.Permission != "" {
		out["permission"] = c.Permission
	}

	if f := c.File; f != nil {
		m := withAttributes(f.Attributes)
		putString(m, "name", f.Name)
		putString(m, "extension", f.Extension)
		putString(m, "mimeType", f.MimeType)
		putString(m, "folder", f.Folder)
		putString(m, "uploadedBy", f.UploadedBy)
		putString(m, "visibility", f.Visibility)
		m["size"] = f.Size
		out["file"] = m
	}

	if p := c.Project; p != nil {
		m := withAttributes(p.Attributes)
		putString(m, "id", p.ID)
		putString(m, "name", p.Name)
		putString(m, "status", p.Status)
		putString(m, "managerId", p.ManagerID)
		m["budget"] = p.Budget
		if p.MemberIDs != nil {
			m["memberIds"] = stringsToValues(p.MemberIDs)
		}
		out["project"] = m
	}

	if i := c.Invoice; i != nil {
		m := withAttributes(i.Attributes)
		putString(m, "id", i.ID)
		putString(m, "status", i.Status)
		putString(m, "currency", i.Currency)
		m["amount"] = i.Amount
		out["invoice"] = m
	}

	if o := c.Opportunity; o != nil {
		m := withAttributes(o.Attributes)
		putString(m, "id", o.ID)
		putString(m, "stage", o.Stage)
		putString(m, "ownerId", o.OwnerID)
		m["value"] = o.Value
		out["opportunity"] = m
	}

	if co := c.Company; co != nil {
		m := withAttributes(co.Attributes)
		putString(m, "id", co.ID)
		putString(m, "name", co.Name)
		putString(m, "type", co.Type)
		out["company"] = m
	}

	return out
}

func withAttributes(attrs map[string]interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs)+8)
	for k, v := range attrs {
		m[k] = v
	}
	return m
}

func putString(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func stringsToValues(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
