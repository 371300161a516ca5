package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgevoice/edgevoice/internal/console"
	"github.com/edgevoice/edgevoice/internal/models"
	"github.com/edgevoice/edgevoice/internal/state"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage speech recognition models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known and trained models",
	RunE:  runModelsList,
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download <name>",
	Short: "Download a recognition model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsDownload,
}

var modelsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that referenced models exist on disk",
	RunE:  runModelsCheck,
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDownloadCmd)
	modelsCmd.AddCommand(modelsCheckCmd)
	rootCmd.AddCommand(modelsCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	styles := console.Default
	dir := state.ModelsDir()

	fmt.Println(styles.Header("Recognition models"))
	for _, name := range models.Known() {
		if models.Installed(name, dir) {
			fmt.Println(styles.OK(name))
		} else {
			fmt.Println(styles.KV(name, "not downloaded"))
		}
	}

	trained := store.ListModels()
	if len(trained) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println(styles.Header("Trained wake word models"))
	for _, m := range trained {
		fmt.Println(styles.KV(m.WakeWord, m.ModelPath))
	}
	return nil
}

func runModelsDownload(cmd *cobra.Command, args []string) error {
	name := args[0]
	styles := console.Default

	path, err := models.Ensure(name, state.ModelsDir(), log)
	if err != nil {
		fmt.Println(styles.Fail("download failed"))
		return err
	}
	fmt.Println(styles.OK("model ready"))
	fmt.Println(styles.KV("path", path))
	return nil
}

func runModelsCheck(cmd *cobra.Command, args []string) error {
	styles := console.Default
	st := store.State()
	problems := 0

	check := func(label, path string) {
		if path == "" {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			fmt.Println(styles.Fail(fmt.Sprintf("%s: missing %s", label, path)))
			problems++
			return
		}
		if !info.IsDir() && info.Size() == 0 {
			fmt.Println(styles.Fail(fmt.Sprintf("%s: empty file %s", label, path)))
			problems++
			return
		}
		fmt.Println(styles.OK(fmt.Sprintf("%s: %s", label, path)))
	}

	check("wake word model", st.ModelPath)
	check("vosk model", st.VoskModelPath)
	for name, info := range store.ListModels() {
		check("trained "+name, info.ModelPath)
	}

	if problems > 0 {
		return fmt.Errorf("%d model(s) missing; run train or models download", problems)
	}
	fmt.Println(styles.OK("all referenced models present"))
	return nil
}
