package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- WORKFLOW TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS workflow SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON workflow TYPE string;
    DEFINE FIELD IF NOT EXISTS type ON workflow TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON workflow TYPE string DEFAULT 'draft';
    DEFINE FIELD IF NOT EXISTS scope ON workflow TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS config ON workflow TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON workflow TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON workflow TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS started_at ON workflow TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS completed_at ON workflow TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS workflow_status ON workflow FIELDS status;

    -- ==========================================================================
    -- JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workflow_id ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS template_id ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS target ON job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string DEFAULT 'pending';
    DEFINE FIELD IF NOT EXISTS round ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS cluster_index ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS priority ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS retry_count ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS max_retries ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS result ON job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS tokens_used ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS started_at ON job TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS completed_at ON job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS job_workflow ON job FIELDS workflow_id;
    DEFINE INDEX IF NOT EXISTS job_status ON job FIELDS status;

    -- ==========================================================================
    -- JOB DEPENDENCY TABLE (upstream must complete before downstream starts)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS depends_on SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workflow_id ON depends_on TYPE string;
    DEFINE FIELD IF NOT EXISTS upstream ON depends_on TYPE string;
    DEFINE FIELD IF NOT EXISTS downstream ON depends_on TYPE string;
    -- Unique constraint prevents duplicate edges
    DEFINE FIELD IF NOT EXISTS unique_key ON depends_on VALUE string::concat(upstream, '->', downstream);
    DEFINE INDEX IF NOT EXISTS unique_edge ON depends_on FIELDS unique_key UNIQUE;
    DEFINE INDEX IF NOT EXISTS dep_workflow ON depends_on FIELDS workflow_id;
    DEFINE INDEX IF NOT EXISTS dep_downstream ON depends_on FIELDS downstream;

    -- ==========================================================================
    -- EXPLORATION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS exploration SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON exploration TYPE string;
    DEFINE FIELD IF NOT EXISTS seed_ids ON exploration TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS generation ON exploration TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS weights ON exploration TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS membership_threshold ON exploration TYPE float;
    DEFINE FIELD IF NOT EXISTS expansion_threshold ON exploration TYPE float;
    DEFINE FIELD IF NOT EXISTS portfolio_boost ON exploration TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS portfolio_ids ON exploration TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS created_at ON exploration TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON exploration TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- EXPLORATION PATENT TABLE (one row per discovered patent)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS exploration_patent SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS exploration ON exploration_patent TYPE string;
    DEFINE FIELD IF NOT EXISTS patent_id ON exploration_patent TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON exploration_patent TYPE string;
    DEFINE FIELD IF NOT EXISTS score ON exploration_patent TYPE float;
    DEFINE FIELD IF NOT EXISTS generation ON exploration_patent TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS role ON exploration_patent TYPE string;
    DEFINE FIELD IF NOT EXISTS seed ON exploration_patent TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS overridden ON exploration_patent TYPE bool DEFAULT false;
    -- One classification per patent per exploration
    DEFINE FIELD IF NOT EXISTS unique_key ON exploration_patent VALUE string::concat(exploration, '/', patent_id);
    DEFINE INDEX IF NOT EXISTS unique_patent ON exploration_patent FIELDS unique_key UNIQUE;
    DEFINE INDEX IF NOT EXISTS patent_exploration ON exploration_patent FIELDS exploration;
    DEFINE INDEX IF NOT EXISTS patent_status ON exploration_patent FIELDS status;

    -- ==========================================================================
    -- CITATION CACHE TABLE (immutable citation facts, keyed by patent id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS citation_cache SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS patent_id ON citation_cache TYPE string;
    DEFINE FIELD IF NOT EXISTS forward_ids ON citation_cache TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS backward_ids ON citation_cache TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS cached_at ON citation_cache TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS cache_patent ON citation_cache FIELDS patent_id UNIQUE;

    -- ==========================================================================
    -- TEMPLATE TABLE (scoring prompts plus their answer contracts)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS template SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON template TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON template TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS content ON template TYPE string;
    DEFINE FIELD IF NOT EXISTS answers ON template TYPE array<object> FLEXIBLE DEFAULT [];
    DEFINE FIELD IF NOT EXISTS created_at ON template TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON template TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- FOCUS AREA TABLE (exported exploration members)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS focus_area SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON focus_area TYPE string;
    DEFINE FIELD IF NOT EXISTS exploration ON focus_area TYPE string;
    DEFINE FIELD IF NOT EXISTS patent_ids ON focus_area TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON focus_area TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS focus_exploration ON focus_area FIELDS exploration;
`
