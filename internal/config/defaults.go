package config

// DefaultConfigYAML contains the default configuration written by `elastask init`.
// Every value matches the loader defaults, so an untouched file changes nothing.
const DefaultConfigYAML = `# elastask configuration
#
# Values not specified here use the built-in defaults. Every key can be
# overridden with an ELASTASK_ environment variable, for example
# ELASTASK_ELASTICSEARCH_HOST or ELASTASK_KIBANA_CAPACITY.
# The flat form "elasticsearch.host: ..." is accepted as well.

elasticsearch:
  host: http://localhost:9200
  # Used for the task search.
  username: elastic
  password: changeme
  # Used for task updates on the system index. The password defaults to
  # elasticsearch.password when omitted.
  indices_username: system_indices_superuser
  index: .kibana_task_manager
  page_size: 5000
  timeout: 30s

kibana:
  hosts:
    - http://localhost:5601
  # Defaults to the elasticsearch credentials when omitted.
  # username: elastic
  # password: changeme
  timeout: 30s

# Maximum number of tasks a single Kibana node may own at once.
kibana_capacity: 10

# Pause between polling cycles, in milliseconds.
polling_interval: 3000

scheduler:
  max_attempts: 3
  retry_backoff: 30s
  # Claims are conditional on the document version seen by the search, so
  # two dispatchers never claim the same task.
  conditional_claims: true

store:
  # elasticsearch or sqlite (local development store)
  backend: elasticsearch
  sqlite_path: .elastask/tasks.db

server:
  enabled: false
  host: localhost
  port: 8089

log:
  level: info   # debug, info, warn, error
  format: auto  # auto, text, json
`
