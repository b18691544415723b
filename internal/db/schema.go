package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- MEMORY_RECORD TABLE (durable copy of the retrieval memory)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS source_text ON memory_record TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON memory_record TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS asset_id ON memory_record TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS importance ON memory_record TYPE float DEFAULT 0.5;
    DEFINE FIELD IF NOT EXISTS timestamp ON memory_record TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS memory_asset ON memory_record FIELDS asset_id;
    DEFINE INDEX IF NOT EXISTS memory_timestamp ON memory_record FIELDS timestamp;
    DEFINE INDEX IF NOT EXISTS memory_embedding ON memory_record FIELDS embedding HNSW DIMENSION 384 DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS memory_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS memory_text_ft ON memory_record FIELDS source_text FULLTEXT ANALYZER memory_analyzer BM25;

    -- ==========================================================================
    -- PROCEDURE TABLE (durable copy of the procedure templates)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS procedure SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON procedure TYPE string;
    DEFINE FIELD IF NOT EXISTS asset_id ON procedure TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS steps ON procedure FLEXIBLE TYPE array<object>;
    DEFINE FIELD IF NOT EXISTS duration ON procedure TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS created ON procedure TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS procedure_asset ON procedure FIELDS asset_id;

    -- ==========================================================================
    -- SESSION_ARCHIVE TABLE (ended sessions, for reporting)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS session_archive SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON session_archive TYPE string;
    DEFINE FIELD IF NOT EXISTS procedure_id ON session_archive TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS completed ON session_archive TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS commands ON session_archive TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS transitions ON session_archive TYPE option<array<object>> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS started_at ON session_archive TYPE datetime;
    DEFINE FIELD IF NOT EXISTS closed_at ON session_archive TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS reason ON session_archive TYPE string;

    DEFINE INDEX IF NOT EXISTS archive_session ON session_archive FIELDS session_id;
    DEFINE INDEX IF NOT EXISTS archive_closed ON session_archive FIELDS closed_at;
    DEFINE INDEX IF NOT EXISTS archive_procedure ON session_archive FIELDS procedure_id;
`
