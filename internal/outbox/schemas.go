package outbox

const participantChangedSchema = `{
  "type": "object",
  "title": "ParticipantChanged",
  "properties": {
    "roster_kind": {"type": "string", "enum": ["session", "match"]},
    "roster_id": {"type": "string"},
    "participant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "status": {"type": "string", "enum": ["interested", "confirmed", "waiting"]},
    "previous_status": {"type": "string"},
    "replaced_user_id": {"type": "string"},
    "admin": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["roster_kind", "roster_id", "participant_id", "user_id", "status", "admin", "occurred_at", "version"],
  "additionalProperties": false
}`

const sessionCancelledSchema = `{
  "type": "object",
  "title": "SessionCancelled",
  "properties": {
    "session_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "date": {"type": "string", "format": "date-time"},
    "cancelled_by": {"type": "string"},
    "affected_user_ids": {"type": "array", "items": {"type": "string"}},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["session_id", "activity_id", "date", "cancelled_by", "affected_user_ids", "occurred_at", "version"],
  "additionalProperties": false
}`
