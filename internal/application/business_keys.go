package application

import (
	"strings"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/remote"
)

// keyResolver derives business keys from local instances and remote records
// against one snapshot of the team's service types.
type keyResolver struct {
	types     []ServiceType
	byID      map[string]ServiceType
	byName    map[string]ServiceType
	adhocTime string
}

func newKeyResolver(types []ServiceType, adhocTime string) keyResolver {
	r := keyResolver{
		types:     types,
		byID:      make(map[string]ServiceType, len(types)),
		byName:    make(map[string]ServiceType, len(types)),
		adhocTime: adhocTime,
	}
	for _, st := range types {
		if _, ok := r.byID[st.ID]; !ok {
			r.byID[st.ID] = st
		}
		lower := strings.ToLower(st.Name)
		if _, ok := r.byName[lower]; !ok {
			r.byName[lower] = st
		}
	}
	return r
}

// resolvedInstance is a selected instance mapped onto its remote identity.
type resolvedInstance struct {
	BusinessKey instance.BusinessKey
	StartTime   string
	ServiceType *ServiceType
}

// forInstance maps a selected instance to its business key. It reports false
// when the key names a service type that no longer exists.
func (r keyResolver) forInstance(sel SelectedInstance) (resolvedInstance, bool) {
	key := sel.Key
	switch key.Instance.Kind() {
	case instance.KindTemplated:
		id, _ := key.Instance.ServiceTypeID()
		st, ok := r.byID[id]
		if !ok {
			return resolvedInstance{}, false
		}
		return r.templated(key.Date, st), true
	case instance.KindAdhoc:
		return r.adhoc(key.Date, firstNonEmpty(sel.ServiceTime, r.adhocTime)), true
	default:
		if matches := typesForDate(r.types, key.Date); len(matches) > 0 {
			return r.templated(key.Date, matches[0]), true
		}
		return r.adhoc(key.Date, firstNonEmpty(sel.ServiceTime, r.adhocTime)), true
	}
}

func (r keyResolver) templated(date instance.Date, st ServiceType) resolvedInstance {
	return resolvedInstance{
		BusinessKey: instance.BusinessKey{Date: date, Name: st.Name},
		StartTime:   st.ServiceTime,
		ServiceType: &st,
	}
}

func (r keyResolver) adhoc(date instance.Date, startTime string) resolvedInstance {
	return resolvedInstance{
		BusinessKey: instance.BusinessKey{Date: date, Name: instance.AdhocName(startTime)},
		StartTime:   startTime,
	}
}

// forRecord derives the business key of a remote record. Records whose name
// matches a service type or the ad-hoc convention keep that name; legacy
// records fall back to the first service type on the same weekday, then to
// an ad-hoc name built from the record's start time.
func (r keyResolver) forRecord(rec remote.Service) instance.BusinessKey {
	name := strings.TrimSpace(rec.Name)
	if _, _, parsed, ok := instance.ParseDisplayName(name); ok {
		name = parsed
	}
	if st, ok := r.byName[strings.ToLower(name)]; ok {
		return instance.BusinessKey{Date: rec.ServiceDate, Name: st.Name}
	}
	if instance.IsAdhocName(name) {
		return instance.BusinessKey{Date: rec.ServiceDate, Name: name}
	}
	if matches := typesForDate(r.types, rec.ServiceDate); len(matches) > 0 {
		return instance.BusinessKey{Date: rec.ServiceDate, Name: matches[0].Name}
	}
	return instance.BusinessKey{Date: rec.ServiceDate, Name: instance.AdhocName(firstNonEmpty(rec.StartTime, r.adhocTime))}
}

// serviceName returns the human readable service name for key.
func (r keyResolver) serviceName(sel SelectedInstance) string {
	resolved, ok := r.forInstance(sel)
	if !ok {
		return sel.Key.String()
	}
	return resolved.BusinessKey.Name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
