package template

import (
	"time"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	violationdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/domain"
)

// BindTask exposes the task columns under the task model name and the
// lpr path alias.
func (c *Context) BindTask(t *taskdomain.Task) *Context {
	if t == nil {
		return c
	}
	attrs := map[string]any{
		"id":                t.ID.Int64(),
		"status":            string(t.Status),
		"event_type":        string(t.EventType),
		"feature_text_key":  string(t.FeatureTextKey),
		"parking_lot_id":    t.ParkingLotID,
		"parking_spot_name": t.ParkingSpotName,
		"plate_number":      t.PlateNumber,
		"session_id":        t.SessionID.Int64(),
		"provider_type":     string(t.ProviderType),
	}
	if t.ParkingSpotID != nil {
		attrs["parking_spot_id"] = *t.ParkingSpotID
	}
	c.Bind("task", attrs)
	c.BindAlias("lpr", t.PlateNumber)
	return c
}

// BindSubTask exposes the sub task columns.
func (c *Context) BindSubTask(st *taskdomain.SubTask) *Context {
	if st == nil {
		return c
	}
	return c.Bind("sub_task", map[string]any{
		"id":                  st.ID.Int64(),
		"status":              string(st.Status),
		"task_id":             st.TaskID.Int64(),
		"provider_creds_id":   st.ProviderCredsID,
		"feature_url_path_id": st.FeatureURLPathID,
	})
}

// BindProvider exposes the provider row, flattening meta_data keys so
// templates can reference provider.tenant_id directly.
func (c *Context) BindProvider(p *providerdomain.Provider) *Context {
	if p == nil {
		return c
	}
	attrs := map[string]any{
		"id":           p.ID,
		"text_key":     p.TextKey,
		"api_endpoint": p.APIEndpoint,
		"oauth_path":   p.OAuthPath,
		"auth_type":    string(p.AuthType),
	}
	for k, v := range p.MetaData {
		if _, taken := attrs[k]; !taken {
			attrs[k] = v
		}
	}
	return c.Bind("provider", attrs)
}

// BindCreds exposes the credential row. Secrets are bound in the clear
// here; only the request builder reads them and logs go through the
// masking helpers.
func (c *Context) BindCreds(creds *providerdomain.ProviderCreds) *Context {
	if creds == nil {
		return c
	}
	attrs := map[string]any{
		"id":            creds.ID,
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
		"api_key":       creds.APIKey,
		"access_token":  creds.AccessToken,
	}
	for k, v := range creds.MetaData {
		if _, taken := attrs[k]; !taken {
			attrs[k] = v
		}
	}
	return c.Bind("provider_creds", attrs)
}

// BindConnect exposes the lot-to-provider link, mainly for its
// facility_id used by the reserved location_id placeholder.
func (c *Context) BindConnect(pc *providerdomain.ProviderConnect) *Context {
	if pc == nil {
		return c
	}
	return c.Bind("provider_connect", map[string]any{
		"id":                pc.ID,
		"connect_id":        pc.ConnectID,
		"provider_creds_id": pc.ProviderCredsID,
		"facility_id":       pc.FacilityID,
	})
}

// BindLot exposes the lot configuration and the gracePeriod path alias.
func (c *Context) BindLot(lot *providerdomain.ConnectParkinglot) *Context {
	if lot == nil {
		return c
	}
	attrs := map[string]any{
		"id":                 lot.ID,
		"parking_lot_id":     lot.ParkingLotID,
		"grace_period":       lot.GracePeriod,
		"parking_operations": string(lot.ParkingOperations),
	}
	if lot.MaximumParkTimeInMins != nil {
		attrs["maximum_park_time_in_minutes"] = *lot.MaximumParkTimeInMins
	}
	c.Bind("connect_parkinglot", attrs)
	c.BindAlias("gracePeriod", lot.GracePeriod)
	return c
}

// BindViolation exposes the violation columns for citation templates.
func (c *Context) BindViolation(v *violationdomain.Violation) *Context {
	if v == nil {
		return c
	}
	attrs := map[string]any{
		"id":             v.ID.Int64(),
		"name":           v.Name,
		"description":    v.Description,
		"violation_type": string(v.ViolationType),
		"amount_due":     v.AmountDue,
		"parking_lot_id": v.ParkingLotID,
		"plate_number":   v.PlateNumber,
		"session_id":     v.SessionID.Int64(),
		"task_id":        v.TaskID.Int64(),
		"timestamp":      v.Timestamp.UTC().Format(time.RFC3339),
	}
	if v.CitationID != nil {
		attrs["citation_id"] = *v.CitationID
	}
	for k, val := range v.ViolationEvent {
		if _, taken := attrs[k]; !taken {
			attrs[k] = val
		}
	}
	return c.Bind("violation", attrs)
}

// BindFeature exposes the feature row.
func (c *Context) BindFeature(f *providerdomain.Feature) *Context {
	if f == nil {
		return c
	}
	return c.Bind("feature", map[string]any{
		"id":       f.ID,
		"text_key": string(f.TextKey),
		"name":     f.Name,
	})
}

// BindAlertBody exposes arbitrary alert payload fields for the admin
// notification templates.
func (c *Context) BindAlertBody(body map[string]any) *Context {
	if body == nil {
		return c
	}
	return c.Bind("alert_body", body)
}

// BindEvent exposes frequently templated event fields without a model
// prefix.
func (c *Context) BindEvent(ev *domain.Event) *Context {
	if ev == nil {
		return c
	}
	c.BindAlias("license_plate", ev.LicensePlate)
	if ev.LprRecordID != nil {
		c.BindAlias("lpr_record_id", *ev.LprRecordID)
	}
	return c
}
